package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Group is a named chat group. The owner is always a member.
type Group struct {
	ID      int64
	Name    string
	OwnerID int64
}

// CreateGroup inserts a group with the caller as owner and first member and
// returns the new group id.
func (s *Store) CreateGroup(name string, ownerID int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO groups(name, owner_id) VALUES(?, ?)`, name, ownerID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(
		`INSERT INTO group_members(group_id, user_id) VALUES(?, ?)`, id, ownerID,
	); err != nil {
		return 0, fmt.Errorf("record owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GroupByID returns the group with the given id, or ErrNotFound.
func (s *Store) GroupByID(id int64) (Group, error) {
	var g Group
	err := s.db.QueryRow(
		`SELECT id, name, owner_id FROM groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, ErrNotFound
	}
	return g, err
}

// IsMember reports whether userID belongs to the group.
func (s *Store) IsMember(groupID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// AddMember adds userID to the group. Returns ErrDuplicate when already a
// member.
func (s *Store) AddMember(groupID, userID int64) error {
	_, err := s.db.Exec(
		`INSERT INTO group_members(group_id, user_id) VALUES(?, ?)`,
		groupID, userID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// RemoveMember removes userID from the group. Returns ErrNotFound when the
// user was not a member.
func (s *Store) RemoveMember(groupID, userID int64) error {
	res, err := s.db.Exec(
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GroupsOf returns every group userID belongs to, ordered by group id.
func (s *Store) GroupsOf(userID int64) ([]Group, error) {
	rows, err := s.db.Query(
		`SELECT g.id, g.name, g.owner_id
		 FROM group_members m JOIN groups g ON g.id = m.group_id
		 WHERE m.user_id = ? ORDER BY g.id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Members returns the group's members ordered by user id (owner first, since
// the owner is the first insert).
func (s *Store) Members(groupID int64) ([]User, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.username, u.password_digest, u.email
		 FROM group_members m JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = ? ORDER BY u.id ASC`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// GroupCount returns the number of groups.
func (s *Store) GroupCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM groups`).Scan(&n)
	return n, err
}
