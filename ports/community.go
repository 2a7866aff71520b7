package ports

import "context"

// Member is a subject as seen by one community.
type Member struct {
	CommunityID string
	SubjectID   string
	RoleIDs     []string
}

// HasRole reports whether the member currently holds roleID.
func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// CommunityAPI is the narrow view of the chat platform the reconciler
// needs. Implementations must already be connected when handed over.
type CommunityAPI interface {
	// Member returns core.ErrNotFound when the subject is not in the
	// community.
	Member(ctx context.Context, communityID, subjectID string) (*Member, error)
	HasManageRoles(ctx context.Context, communityID string) (bool, error)
	BotHighestRolePosition(ctx context.Context, communityID string) (int, error)
	// RolePosition returns ok=false when the role does not exist.
	RolePosition(ctx context.Context, communityID, roleID string) (position int, ok bool, err error)
	AddRole(ctx context.Context, member *Member, roleID string) error
	RemoveRole(ctx context.Context, member *Member, roleID string) error
}
