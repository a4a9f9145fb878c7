package authz

import "errors"

var (
	// ErrNotFoundOrForbidden is returned whenever a caller is not a member of a
	// group. A missing group reports the same error so that group existence is
	// never revealed to outsiders.
	ErrNotFoundOrForbidden = errors.New("group not found or not accessible")
	ErrAdminRequired       = errors.New("group admin required")
	ErrCannotRemoveAdmin   = errors.New("cannot remove the group admin")
)

// Membership is a point-in-time snapshot of one group's member set, loaded by
// the caller. All decisions are pure functions over this snapshot.
type Membership struct {
	GroupID   string
	AdminID   string
	memberIDs map[string]struct{}
}

func NewMembership(groupID, adminID string, memberIDs []string) Membership {
	members := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = struct{}{}
	}
	return Membership{GroupID: groupID, AdminID: adminID, memberIDs: members}
}

func (m Membership) IsMember(userID string) bool {
	_, ok := m.memberIDs[userID]
	return ok
}

func (m Membership) IsAdmin(userID string) bool {
	return userID != "" && userID == m.AdminID
}

func (m Membership) RequireMember(userID string) error {
	if !m.IsMember(userID) {
		return ErrNotFoundOrForbidden
	}
	return nil
}

// RequireAdmin assumes the caller has already passed RequireMember; a member
// who is not the admin gets an explicit ErrAdminRequired rather than the
// opaque not-found answer.
func (m Membership) RequireAdmin(userID string) error {
	if err := m.RequireMember(userID); err != nil {
		return err
	}
	if !m.IsAdmin(userID) {
		return ErrAdminRequired
	}
	return nil
}

// CheckAdd reports whether adding targetID would change the member set.
// Adding a present member is not an error, just a no-op.
func (m Membership) CheckAdd(targetID string) (changed bool) {
	return !m.IsMember(targetID)
}

// CheckRemove reports whether removing targetID would change the member set.
// The admin can never be removed; removing an absent member is a no-op.
func (m Membership) CheckRemove(targetID string) (changed bool, err error) {
	if m.IsAdmin(targetID) {
		return false, ErrCannotRemoveAdmin
	}
	return m.IsMember(targetID), nil
}
