package config

import (
	"bytes"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/internal/eth"
)

// Settings is the settings file: the tracked collection, the tier table and
// the tuning knobs of verification and batch runs.
type Settings struct {
	Collection   Collection   `yaml:"collection"`
	Tiers        []core.Tier  `yaml:"tiers"`
	Communities  []Community  `yaml:"communities"`
	Verification Verification `yaml:"verification"`
	RateLimit    RateLimit    `yaml:"rate_limit"`
}

// Collection is the on-chain asset whose balance selects the tier.
type Collection struct {
	ContractAddress string `yaml:"contract_address"`
	Chain           string `yaml:"chain"`
	// Decimals scales raw balances; zero for NFTs.
	Decimals int32 `yaml:"decimals"`
}

// Community is a server the bot reconciles roles in. Tiers overrides the
// global tier table when set.
type Community struct {
	ID    string      `yaml:"id"`
	Name  string      `yaml:"name"`
	Tiers []core.Tier `yaml:"tiers"`
}

type Verification struct {
	BatchSize      int           `yaml:"batch_size"`
	BatchDelay     time.Duration `yaml:"batch_delay"`
	Schedule       string        `yaml:"schedule"`
	ChallengeTTL   time.Duration `yaml:"challenge_ttl"`
	BalanceTimeout time.Duration `yaml:"balance_timeout"`
	RoleTimeout    time.Duration `yaml:"role_timeout"`
}

type RateLimit struct {
	Window      time.Duration `yaml:"window"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Default values applied to zero fields.
const (
	DefaultBatchSize      = 10
	DefaultBatchDelay     = 2 * time.Second
	DefaultSchedule       = "0 */6 * * *"
	DefaultChallengeTTL   = 10 * time.Minute
	DefaultBalanceTimeout = 15 * time.Second
	DefaultRoleTimeout    = 10 * time.Second
	DefaultRateWindow     = 15 * time.Minute
	DefaultMaxAttempts    = 5
)

// ParseSettings decodes and validates a settings document.
func ParseSettings(data []byte) (*Settings, error) {
	s := &Settings{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSettings reads the settings file at path.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return ParseSettings(data)
}

func (s *Settings) applyDefaults() {
	v := &s.Verification
	if v.BatchSize <= 0 {
		v.BatchSize = DefaultBatchSize
	}
	if v.BatchDelay == 0 {
		v.BatchDelay = DefaultBatchDelay
	}
	if v.Schedule == "" {
		v.Schedule = DefaultSchedule
	}
	if v.ChallengeTTL == 0 {
		v.ChallengeTTL = DefaultChallengeTTL
	}
	if v.BalanceTimeout == 0 {
		v.BalanceTimeout = DefaultBalanceTimeout
	}
	if v.RoleTimeout == 0 {
		v.RoleTimeout = DefaultRoleTimeout
	}
	if s.RateLimit.Window == 0 {
		s.RateLimit.Window = DefaultRateWindow
	}
	if s.RateLimit.MaxAttempts <= 0 {
		s.RateLimit.MaxAttempts = DefaultMaxAttempts
	}
}

// Validate checks the settings for values the service cannot run with.
func (s *Settings) Validate() error {
	if s.Collection.ContractAddress != "" {
		if _, err := eth.ChecksumAddress(s.Collection.ContractAddress); err != nil {
			return fmt.Errorf("collection contract %q: %w", s.Collection.ContractAddress, core.ErrInvalidConfig)
		}
	}
	if s.Collection.Decimals < 0 {
		return fmt.Errorf("collection decimals must not be negative: %w", core.ErrInvalidConfig)
	}
	if err := core.ValidateTiers(s.Tiers); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(s.Communities))
	for _, c := range s.Communities {
		if c.ID == "" {
			return fmt.Errorf("community without id: %w", core.ErrInvalidConfig)
		}
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("duplicate community %q: %w", c.ID, core.ErrInvalidConfig)
		}
		seen[c.ID] = struct{}{}
		if err := core.ValidateTiers(c.Tiers); err != nil {
			return fmt.Errorf("community %q: %w", c.ID, err)
		}
	}

	if _, err := cron.ParseStandard(s.Verification.Schedule); err != nil {
		return fmt.Errorf("schedule %q: %v: %w", s.Verification.Schedule, err, core.ErrInvalidConfig)
	}
	if s.Verification.BatchDelay < 0 {
		return fmt.Errorf("batch delay must not be negative: %w", core.ErrInvalidConfig)
	}
	return nil
}

// TiersFor returns the tier table that applies to a community.
func (s *Settings) TiersFor(communityID string) []core.Tier {
	for _, c := range s.Communities {
		if c.ID == communityID && len(c.Tiers) > 0 {
			return c.Tiers
		}
	}
	return s.Tiers
}

// CommunityIDs lists the configured communities in file order.
func (s *Settings) CommunityIDs() []string {
	ids := make([]string, len(s.Communities))
	for i, c := range s.Communities {
		ids[i] = c.ID
	}
	return ids
}

// Live holds the current settings and swaps them atomically on Reload, so a
// reconciliation pass always sees one consistent tier table.
type Live struct {
	path    string
	current atomic.Pointer[Settings]
}

// NewLive loads path and returns a reloadable holder.
func NewLive(path string) (*Live, error) {
	s, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	l := &Live{path: path}
	l.current.Store(s)
	return l, nil
}

// StaticSettings wraps fixed settings, mostly for tests.
func StaticSettings(s *Settings) *Live {
	s.applyDefaults()
	l := &Live{}
	l.current.Store(s)
	return l
}

// Settings returns the current snapshot. Callers must not modify it.
func (l *Live) Settings() *Settings {
	return l.current.Load()
}

// Reload re-reads the settings file; the old snapshot stays in place on
// error.
func (l *Live) Reload() error {
	if l.path == "" {
		return nil
	}
	s, err := LoadSettings(l.path)
	if err != nil {
		return err
	}
	l.current.Store(s)
	return nil
}
