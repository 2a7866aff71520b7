package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

// Community implements ports.CommunityAPI over the Discord REST API.
// Guilds are communities and users are subjects.
type Community struct {
	session *discordgo.Session

	mu    sync.Mutex
	botID string
}

// NewCommunity wraps an existing session. Call Ready before use.
func NewCommunity(session *discordgo.Session) *Community {
	return &Community{session: session}
}

// Dial creates a REST-only session for a bot token.
func Dial(token string) (*Community, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return NewCommunity(session), nil
}

var _ ports.CommunityAPI = (*Community)(nil)

// Ready resolves the bot's own user and fails if the token is rejected.
func (c *Community) Ready(ctx context.Context) error {
	me, err := c.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to resolve bot user: %w", err)
	}

	c.mu.Lock()
	c.botID = me.ID
	c.mu.Unlock()
	return nil
}

func (c *Community) bot() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botID == "" {
		return "", errors.New("discord session not ready")
	}
	return c.botID, nil
}

// Member returns core.ErrNotFound when the user is not in the guild.
func (c *Community) Member(ctx context.Context, communityID, subjectID string) (*ports.Member, error) {
	m, err := c.session.GuildMember(communityID, subjectID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("member %s of %s: %w", subjectID, communityID, core.ErrNotFound)
		}
		return nil, err
	}
	return &ports.Member{
		CommunityID: communityID,
		SubjectID:   subjectID,
		RoleIDs:     m.Roles,
	}, nil
}

// HasManageRoles reports whether the bot may manage roles in the guild,
// either as owner, administrator or through the manage roles permission.
func (c *Community) HasManageRoles(ctx context.Context, communityID string) (bool, error) {
	botID, err := c.bot()
	if err != nil {
		return false, err
	}

	guild, err := c.session.Guild(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	if guild.OwnerID == botID {
		return true, nil
	}

	roles, err := c.botRoles(ctx, communityID, botID)
	if err != nil {
		return false, err
	}

	var perms int64
	for _, r := range roles {
		perms |= r.Permissions
	}
	return perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageRoles) != 0, nil
}

// BotHighestRolePosition returns the position of the bot's top role, 0 if
// it only has @everyone.
func (c *Community) BotHighestRolePosition(ctx context.Context, communityID string) (int, error) {
	botID, err := c.bot()
	if err != nil {
		return 0, err
	}

	roles, err := c.botRoles(ctx, communityID, botID)
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, r := range roles {
		if r.Position > highest {
			highest = r.Position
		}
	}
	return highest, nil
}

// RolePosition looks a role up in the guild.
func (c *Community) RolePosition(ctx context.Context, communityID, roleID string) (int, bool, error) {
	roles, err := c.session.GuildRoles(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, false, err
	}
	for _, r := range roles {
		if r.ID == roleID {
			return r.Position, true, nil
		}
	}
	return 0, false, nil
}

func (c *Community) AddRole(ctx context.Context, m *ports.Member, roleID string) error {
	return c.session.GuildMemberRoleAdd(m.CommunityID, m.SubjectID, roleID, discordgo.WithContext(ctx))
}

func (c *Community) RemoveRole(ctx context.Context, m *ports.Member, roleID string) error {
	return c.session.GuildMemberRoleRemove(m.CommunityID, m.SubjectID, roleID, discordgo.WithContext(ctx))
}

// botRoles returns the guild roles held by the bot, @everyone included.
func (c *Community) botRoles(ctx context.Context, communityID, botID string) ([]*discordgo.Role, error) {
	member, err := c.session.GuildMember(communityID, botID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bot member: %w", err)
	}
	all, err := c.session.GuildRoles(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	held := make(map[string]struct{}, len(member.Roles)+1)
	held[communityID] = struct{}{} // @everyone shares the guild id
	for _, id := range member.Roles {
		held[id] = struct{}{}
	}

	var roles []*discordgo.Role
	for _, r := range all {
		if _, ok := held[r.ID]; ok {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
