package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// orderPair normalises an undirected edge so user_a < user_b.
func orderPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// AreFriends reports whether an accepted friendship exists between a and b.
func (s *Store) AreFriends(a, b int64) (bool, error) {
	lo, hi := orderPair(a, b)
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM friends WHERE user_a = ? AND user_b = ? AND status = 'accepted'`,
		lo, hi,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// HasInvite reports whether a pending invite from 'from' to 'to' exists.
func (s *Store) HasInvite(from, to int64) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM friends WHERE user_a = ? AND user_b = ? AND status = 'pending'`,
		from, to,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CreateInvite records a directed pending invite from 'from' to 'to'.
func (s *Store) CreateInvite(from, to int64) error {
	_, err := s.db.Exec(
		`INSERT INTO friends(user_a, user_b, status) VALUES(?, ?, 'pending')`,
		from, to,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// AcceptInvite converts the pending invite from→to into a mutual friendship.
// Returns ErrNotFound when no such invite exists.
func (s *Store) AcceptInvite(from, to int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`DELETE FROM friends WHERE user_a = ? AND user_b = ? AND status = 'pending'`,
		from, to,
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

	lo, hi := orderPair(from, to)
	if _, err := tx.Exec(
		`INSERT INTO friends(user_a, user_b, status) VALUES(?, ?, 'accepted')`,
		lo, hi,
	); err != nil {
		return fmt.Errorf("record friendship: %w", err)
	}
	return tx.Commit()
}

// DeleteInvite removes the pending invite from→to (a reject).
// Returns ErrNotFound when no such invite exists.
func (s *Store) DeleteInvite(from, to int64) error {
	res, err := s.db.Exec(
		`DELETE FROM friends WHERE user_a = ? AND user_b = ? AND status = 'pending'`,
		from, to,
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

// DeleteFriendship removes the accepted edge between a and b, both
// directions at once. Returns ErrNotFound when they are not friends.
func (s *Store) DeleteFriendship(a, b int64) error {
	lo, hi := orderPair(a, b)
	res, err := s.db.Exec(
		`DELETE FROM friends WHERE user_a = ? AND user_b = ? AND status = 'accepted'`,
		lo, hi,
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

// Friends returns every user who shares an accepted friendship with userID,
// ordered by username.
func (s *Store) Friends(userID int64) ([]User, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.username, u.password_digest, u.email
		 FROM friends f
		 JOIN users u ON u.id = CASE WHEN f.user_a = ? THEN f.user_b ELSE f.user_a END
		 WHERE (f.user_a = ? OR f.user_b = ?) AND f.status = 'accepted'
		 ORDER BY u.username ASC`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// PendingInvites returns the users who have an outstanding invite to userID,
// ordered by username.
func (s *Store) PendingInvites(userID int64) ([]User, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.username, u.password_digest, u.email
		 FROM friends f
		 JOIN users u ON u.id = f.user_a
		 WHERE f.user_b = ? AND f.status = 'pending'
		 ORDER BY u.username ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordDigest, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
