package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"taskhive/api/internal/authz"
	"taskhive/api/internal/store"
	"taskhive/api/internal/util"
)

func groupNotFound(groupID string) *DomainError {
	return domainError(http.StatusNotFound, "GROUP_NOT_FOUND",
		fmt.Sprintf("Group with id %s not found or you don't have access to it.", groupID), nil)
}

func adminRequired() *DomainError {
	return domainError(http.StatusForbidden, "ADMIN_REQUIRED", "Only the group admin can perform this action", nil)
}

func userNotFound(userID string) *DomainError {
	return domainError(http.StatusNotFound, "USER_NOT_FOUND",
		fmt.Sprintf("User with id %s not found", userID), nil)
}

// authzError translates a membership decision into the API error contract.
// Non-members and missing groups are indistinguishable on the wire.
func authzError(err error, groupID string) error {
	switch {
	case errors.Is(err, authz.ErrNotFoundOrForbidden):
		return groupNotFound(groupID)
	case errors.Is(err, authz.ErrAdminRequired):
		return adminRequired()
	case errors.Is(err, authz.ErrCannotRemoveAdmin):
		return domainError(http.StatusBadRequest, "CANNOT_REMOVE_ADMIN", "Cannot remove the group admin from the group", nil)
	default:
		return err
	}
}

// loadMembership locks the group row and snapshots its member set. Every
// group mutation starts here so concurrent changes to the same group
// serialize on the row lock.
func loadMembership(ctx context.Context, ops store.GroupOps, groupID string) (store.Group, authz.Membership, error) {
	group, err := ops.GetGroupForUpdate(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Group{}, authz.Membership{}, groupNotFound(groupID)
		}
		return store.Group{}, authz.Membership{}, fmt.Errorf("load group: %w", err)
	}
	memberIDs, err := ops.GroupMemberIDs(ctx, groupID)
	if err != nil {
		return store.Group{}, authz.Membership{}, err
	}
	return group, authz.NewMembership(group.ID, group.AdminID, memberIDs), nil
}

func validateGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 100 {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Group name must be between 2 and 100 characters", nil)
	}
	return name, nil
}

func validateGroupDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if len(description) > 500 {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Group description must be at most 500 characters", nil)
	}
	return description, nil
}

// CreateGroup creates a group with the caller as admin. The admin is also
// enrolled as a member in the same transaction, so the admin-is-member
// invariant holds from the first commit.
func (s *Service) CreateGroup(ctx context.Context, session Session, name, description string) (map[string]any, error) {
	name, err := validateGroupName(name)
	if err != nil {
		return nil, err
	}
	description, err = validateGroupDescription(description)
	if err != nil {
		return nil, err
	}

	group := store.Group{
		ID:          util.NewID("grp"),
		Name:        name,
		Description: description,
		AdminID:     session.UserID,
	}
	err = s.store.InGroupTx(ctx, func(ops store.GroupOps) error {
		if err := ops.InsertGroup(ctx, group); err != nil {
			return err
		}
		return ops.AddMember(ctx, group.ID, session.UserID)
	})
	if err != nil {
		return nil, err
	}

	created, err := s.store.GetGroup(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("reload group: %w", err)
	}
	return groupPayload(created), nil
}

// GetGroup returns a group with its members, visible to members only.
func (s *Service) GetGroup(ctx context.Context, session Session, groupID string) (map[string]any, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, groupNotFound(groupID)
		}
		return nil, fmt.Errorf("load group: %w", err)
	}
	memberIDs, err := s.store.GroupMemberIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	membership := authz.NewMembership(group.ID, group.AdminID, memberIDs)
	if err := membership.RequireMember(session.UserID); err != nil {
		return nil, authzError(err, groupID)
	}

	members, err := s.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	payload := groupPayload(group)
	payload["members"] = memberPayloads(members)
	return payload, nil
}

// ListGroups returns the caller's groups, optionally filtered by name.
func (s *Service) ListGroups(ctx context.Context, session Session, nameFilter string) (map[string]any, error) {
	groups, err := s.store.ListGroupsForMember(ctx, session.UserID, strings.TrimSpace(nameFilter))
	if err != nil {
		return nil, err
	}
	return map[string]any{"groups": groupPayloads(groups), "count": len(groups)}, nil
}

// SearchGroups is ListGroups with a mandatory term of at least two characters.
func (s *Service) SearchGroups(ctx context.Context, session Session, term string) (map[string]any, error) {
	term = strings.TrimSpace(term)
	if len(term) < 2 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Search term must be at least 2 characters long", nil)
	}
	groups, err := s.store.ListGroupsForMember(ctx, session.UserID, term)
	if err != nil {
		return nil, err
	}
	return map[string]any{"groups": groupPayloads(groups), "count": len(groups), "term": term}, nil
}

// UpdateGroup applies a partial update to name and description. Admin only.
func (s *Service) UpdateGroup(ctx context.Context, session Session, groupID string, update store.GroupUpdate) (map[string]any, error) {
	err := s.store.InGroupTx(ctx, func(ops store.GroupOps) error {
		group, membership, err := loadMembership(ctx, ops, groupID)
		if err != nil {
			return err
		}
		if err := membership.RequireAdmin(session.UserID); err != nil {
			return authzError(err, groupID)
		}

		name := group.Name
		if update.Name != nil {
			if name, err = validateGroupName(*update.Name); err != nil {
				return err
			}
		}
		description := group.Description
		if update.Description != nil {
			if description, err = validateGroupDescription(*update.Description); err != nil {
				return err
			}
		}
		return ops.UpdateGroup(ctx, groupID, name, description)
	})
	if err != nil {
		return nil, err
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("reload group: %w", err)
	}
	return groupPayload(group), nil
}

// DeleteGroup removes the group and its membership relation. Admin only.
func (s *Service) DeleteGroup(ctx context.Context, session Session, groupID string) error {
	return s.store.InGroupTx(ctx, func(ops store.GroupOps) error {
		_, membership, err := loadMembership(ctx, ops, groupID)
		if err != nil {
			return err
		}
		if err := membership.RequireAdmin(session.UserID); err != nil {
			return authzError(err, groupID)
		}
		return ops.DeleteGroup(ctx, groupID)
	})
}

// ListMembers returns the group's members, visible to members only.
func (s *Service) ListMembers(ctx context.Context, session Session, groupID string) (map[string]any, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, groupNotFound(groupID)
		}
		return nil, fmt.Errorf("load group: %w", err)
	}
	memberIDs, err := s.store.GroupMemberIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	membership := authz.NewMembership(group.ID, group.AdminID, memberIDs)
	if err := membership.RequireMember(session.UserID); err != nil {
		return nil, authzError(err, groupID)
	}

	members, err := s.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"members": memberPayloads(members), "count": len(members), "admin_id": group.AdminID}, nil
}

// AddMember enrolls an existing active user into the group. Adding a user who
// is already a member succeeds without changing anything. Admin only.
func (s *Service) AddMember(ctx context.Context, session Session, groupID, targetUserID string) (map[string]any, error) {
	var message string
	err := s.store.InGroupTx(ctx, func(ops store.GroupOps) error {
		group, membership, err := loadMembership(ctx, ops, groupID)
		if err != nil {
			return err
		}
		if err := membership.RequireAdmin(session.UserID); err != nil {
			return authzError(err, groupID)
		}

		target, err := ops.GetUserByID(ctx, targetUserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return userNotFound(targetUserID)
			}
			return fmt.Errorf("load user: %w", err)
		}
		if !target.IsActive {
			return userNotFound(targetUserID)
		}

		if !membership.CheckAdd(target.ID) {
			message = fmt.Sprintf("User %s is already in group %s", target.Username, group.Name)
			return nil
		}
		if err := ops.AddMember(ctx, groupID, target.ID); err != nil {
			return err
		}
		message = fmt.Sprintf("User %s added to group %s", target.Username, group.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"message": message}, nil
}

// RemoveMember takes an existing user out of the group. An unknown target id
// is rejected; removing a user who exists but is not a member succeeds without
// changing anything. The admin can never be removed. Admin only.
func (s *Service) RemoveMember(ctx context.Context, session Session, groupID, targetUserID string) (map[string]any, error) {
	var message string
	err := s.store.InGroupTx(ctx, func(ops store.GroupOps) error {
		group, membership, err := loadMembership(ctx, ops, groupID)
		if err != nil {
			return err
		}
		if err := membership.RequireAdmin(session.UserID); err != nil {
			return authzError(err, groupID)
		}

		target, err := ops.GetUserByID(ctx, targetUserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return userNotFound(targetUserID)
			}
			return fmt.Errorf("load user: %w", err)
		}

		changed, err := membership.CheckRemove(target.ID)
		if err != nil {
			return authzError(err, groupID)
		}
		if !changed {
			message = fmt.Sprintf("User %s is not in group %s", target.Username, group.Name)
			return nil
		}
		if err := ops.RemoveMember(ctx, groupID, target.ID); err != nil {
			return err
		}
		message = fmt.Sprintf("User %s removed from group %s", target.Username, group.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"message": message}, nil
}

// InviteByEmail adds the user registered under the given email, or reports
// the invitation as pending when no active account matches. Pending
// invitations are informational; nothing is persisted for them. Admin only.
func (s *Service) InviteByEmail(ctx context.Context, session Session, groupID, email string) (map[string]any, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "A valid email is required", nil)
	}

	var message string
	err := s.store.InGroupTx(ctx, func(ops store.GroupOps) error {
		group, membership, err := loadMembership(ctx, ops, groupID)
		if err != nil {
			return err
		}
		if err := membership.RequireAdmin(session.UserID); err != nil {
			return authzError(err, groupID)
		}

		target, err := ops.GetUserByEmail(ctx, email)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load user: %w", err)
		}
		if err != nil || !target.IsActive {
			message = fmt.Sprintf("Invitation will be sent to %s once they register", email)
			return nil
		}
		if !membership.CheckAdd(target.ID) {
			message = fmt.Sprintf("User with email %s is already in group %s", email, group.Name)
			return nil
		}
		if err := ops.AddMember(ctx, groupID, target.ID); err != nil {
			return err
		}
		message = fmt.Sprintf("User with email %s added to group %s", email, group.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"message": message}, nil
}

func groupPayloads(groups []store.Group) []map[string]any {
	payloads := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		payloads = append(payloads, groupPayload(group))
	}
	return payloads
}

func memberPayloads(users []store.User) []map[string]any {
	payloads := make([]map[string]any, 0, len(users))
	for _, user := range users {
		payloads = append(payloads, userPayload(user))
	}
	return payloads
}
