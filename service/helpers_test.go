package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Madhoneybees/discord-nft-verifier/adapters/store"
	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/internal/config"
	"github.com/Madhoneybees/discord-nft-verifier/internal/log"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

const (
	testCommunity = "community-1"
	holderRole    = "role-holder"
	whaleRole     = "role-whale"
)

var testTiers = []core.Tier{
	{Name: "Holder", MinCount: 1, RoleID: holderRole, Description: "Holds at least one"},
	{Name: "Whale", MinCount: 10, RoleID: whaleRole, Description: "Holds ten or more"},
}

func testSettings(communities ...config.Community) *config.Live {
	if len(communities) == 0 {
		communities = []config.Community{{ID: testCommunity, Name: "Test"}}
	}
	return config.StaticSettings(&config.Settings{
		Tiers:       testTiers,
		Communities: communities,
		Verification: config.Verification{
			BatchSize:  2,
			BatchDelay: time.Second,
		},
	})
}

func newMockClock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return mock
}

// fakeCommunity is an in-memory community platform. Every role exists at
// position 1 unless positions says otherwise; the bot sits at 10.
type fakeCommunity struct {
	mu sync.Mutex

	roles     map[string]map[string]map[string]bool // community -> subject -> role
	noManage  map[string]bool
	positions map[string]int
	missing   map[string]bool
	failing   map[string]error
	hanging   map[string]bool
	botPos    int

	calls []string
}

func newFakeCommunity() *fakeCommunity {
	return &fakeCommunity{
		roles:     make(map[string]map[string]map[string]bool),
		noManage:  make(map[string]bool),
		positions: make(map[string]int),
		missing:   make(map[string]bool),
		failing:   make(map[string]error),
		hanging:   make(map[string]bool),
		botPos:    10,
	}
}

var _ ports.CommunityAPI = (*fakeCommunity)(nil)

func (f *fakeCommunity) join(communityID, subjectID string, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.roles[communityID] == nil {
		f.roles[communityID] = make(map[string]map[string]bool)
	}
	held := make(map[string]bool)
	for _, r := range roles {
		held[r] = true
	}
	f.roles[communityID][subjectID] = held
}

func (f *fakeCommunity) held(communityID, subjectID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for r := range f.roles[communityID][subjectID] {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (f *fakeCommunity) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCommunity) Member(ctx context.Context, communityID, subjectID string) (*ports.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	held, ok := f.roles[communityID][subjectID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", subjectID, core.ErrNotFound)
	}
	m := &ports.Member{CommunityID: communityID, SubjectID: subjectID}
	for r := range held {
		m.RoleIDs = append(m.RoleIDs, r)
	}
	sort.Strings(m.RoleIDs)
	return m, nil
}

func (f *fakeCommunity) HasManageRoles(ctx context.Context, communityID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.noManage[communityID], nil
}

func (f *fakeCommunity) BotHighestRolePosition(ctx context.Context, communityID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.botPos, nil
}

func (f *fakeCommunity) RolePosition(ctx context.Context, communityID, roleID string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.missing[roleID] {
		return 0, false, nil
	}
	if pos, ok := f.positions[roleID]; ok {
		return pos, true, nil
	}
	return 1, true, nil
}

func (f *fakeCommunity) AddRole(ctx context.Context, m *ports.Member, roleID string) error {
	f.mu.Lock()
	hang := f.hanging[roleID]
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.apply(m, roleID, core.OpAdd)
}

func (f *fakeCommunity) RemoveRole(ctx context.Context, m *ports.Member, roleID string) error {
	return f.apply(m, roleID, core.OpRemove)
}

func (f *fakeCommunity) apply(m *ports.Member, roleID string, op core.MutationOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failing[roleID]; err != nil {
		return err
	}
	f.calls = append(f.calls, fmt.Sprintf("%s:%s:%s:%s", op, m.CommunityID, m.SubjectID, roleID))
	held := f.roles[m.CommunityID][m.SubjectID]
	if op == core.OpAdd {
		held[roleID] = true
	} else {
		delete(held, roleID)
	}
	return nil
}

// fakeBalances serves balances keyed by lower-cased wallet.
type fakeBalances struct {
	mu     sync.Mutex
	counts map[string]uint64
	errs   map[string]error
	hang   map[string]bool
	calls  int
}

func newFakeBalances() *fakeBalances {
	return &fakeBalances{
		counts: make(map[string]uint64),
		errs:   make(map[string]error),
		hang:   make(map[string]bool),
	}
}

// stall makes lookups of wallet block until their context ends.
func (f *fakeBalances) stall(wallet string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang[strings.ToLower(wallet)] = true
}

func (f *fakeBalances) completed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBalances) set(wallet string, count uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[strings.ToLower(wallet)] = count
}

func (f *fakeBalances) fail(wallet string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[strings.ToLower(wallet)] = err
}

func (f *fakeBalances) Balance(ctx context.Context, address string) (uint64, error) {
	f.mu.Lock()
	hang := f.hang[strings.ToLower(address)]
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if hang {
		return 0, ctx.Err()
	}
	if err := f.errs[strings.ToLower(address)]; err != nil {
		return 0, err
	}
	return f.counts[strings.ToLower(address)], nil
}

// recordingPacer returns immediately and remembers every requested delay.
type recordingPacer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPacer) Wait(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, d)
	return ctx.Err()
}

// orderingPacer records how many balance lookups had returned each time
// it was asked to wait.
type orderingPacer struct {
	balances *fakeBalances

	mu       sync.Mutex
	observed []int
}

func (p *orderingPacer) Wait(ctx context.Context, d time.Duration) error {
	done := p.balances.completed()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed = append(p.observed, done)
	return ctx.Err()
}

// alternatingTiers hands out a different tier table on every read.
type alternatingTiers struct {
	mu    sync.Mutex
	reads int
	sets  []*config.Settings
}

func (a *alternatingTiers) Settings() *config.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.sets[a.reads%len(a.sets)]
	a.reads++
	return s
}

// recordingPublisher keeps every published event per topic.
type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]any
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[string][]any)
	}
	p.events[topic] = append(p.events[topic], event)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[topic])
}

// failingStore rejects writes to one key.
type failingStore struct {
	*store.MemoryStore
	key string
}

func (s *failingStore) Set(ctx context.Context, collection, key string, doc any, merge bool) error {
	if key == s.key {
		return fmt.Errorf("store unavailable")
	}
	return s.MemoryStore.Set(ctx, collection, key, doc, merge)
}

type reconcilerFixture struct {
	clock      *clock.Mock
	store      *store.MemoryStore
	community  *fakeCommunity
	events     *recordingPublisher
	reconciler *Reconciler
}

func newReconcilerFixture(settings TierSource) *reconcilerFixture {
	f := &reconcilerFixture{
		clock:     newMockClock(),
		store:     store.NewMemoryStore(),
		community: newFakeCommunity(),
		events:    &recordingPublisher{},
	}
	f.reconciler = NewReconciler(settings, f.community, f.store, f.events, f.clock, log.TestingLogger(), NopMetrics())
	return f
}

func (f *reconcilerFixture) account(subjectID string) *core.VerifiedAccount {
	var account core.VerifiedAccount
	if err := f.store.Get(context.Background(), core.CollectionUsers, subjectID, &account); err != nil {
		return nil
	}
	return &account
}
