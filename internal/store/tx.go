package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GroupOps is the view of the store available inside a single group
// transaction. Every load-check-mutate sequence on a group runs against one
// GroupOps instance so no partial mutation is ever observable.
type GroupOps interface {
	InsertGroup(ctx context.Context, group Group) error
	// GetGroupForUpdate locks the group row for the rest of the transaction,
	// serializing concurrent mutations of the same group. Transactions on
	// other groups are unaffected.
	GetGroupForUpdate(ctx context.Context, groupID string) (Group, error)
	GroupMemberIDs(ctx context.Context, groupID string) ([]string, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	UpdateGroup(ctx context.Context, groupID, name, description string) error
	DeleteGroup(ctx context.Context, groupID string) error
}

// InGroupTx runs fn inside a transaction; any error rolls the whole
// operation back.
func (s *PostgresStore) InGroupTx(ctx context.Context, fn func(ops GroupOps) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group tx: %w", err)
	}
	if err := fn(&groupTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group tx: %w", err)
	}
	return nil
}

type groupTx struct {
	tx *sql.Tx
}

func (g *groupTx) InsertGroup(ctx context.Context, group Group) error {
	_, err := g.tx.ExecContext(ctx, `
		INSERT INTO groups (id, name, description, admin_id)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, group.ID, group.Name, group.Description, group.AdminID)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (g *groupTx) GetGroupForUpdate(ctx context.Context, groupID string) (Group, error) {
	var group Group
	err := g.tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), admin_id, created_at, updated_at
		FROM groups
		WHERE id=$1
		FOR UPDATE
	`, groupID).Scan(&group.ID, &group.Name, &group.Description, &group.AdminID, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return Group{}, err
	}
	return group, nil
}

func (g *groupTx) GroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return groupMemberIDs(ctx, g.tx, groupID)
}

func (g *groupTx) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(g.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (g *groupTx) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(g.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (g *groupTx) AddMember(ctx context.Context, groupID, userID string) error {
	_, err := g.tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (g *groupTx) RemoveMember(ctx context.Context, groupID, userID string) error {
	_, err := g.tx.ExecContext(ctx, `
		DELETE FROM group_members WHERE group_id=$1 AND user_id=$2
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (g *groupTx) UpdateGroup(ctx context.Context, groupID, name, description string) error {
	_, err := g.tx.ExecContext(ctx, `
		UPDATE groups SET name=$2, description=NULLIF($3, ''), updated_at=NOW()
		WHERE id=$1
	`, groupID, name, description)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

// DeleteGroup discards the membership relation along with the group itself.
func (g *groupTx) DeleteGroup(ctx context.Context, groupID string) error {
	if _, err := g.tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1`, groupID); err != nil {
		return fmt.Errorf("delete group members: %w", err)
	}
	if _, err := g.tx.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

var _ GroupOps = (*groupTx)(nil)
