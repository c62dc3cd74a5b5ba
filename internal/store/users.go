package store

import (
	"database/sql"
	"errors"
	"strings"
)

// User is one registered account. The password digest is opaque to the
// store; hashing happens in the account layer.
type User struct {
	ID             int64
	Username       string
	PasswordDigest string
	Email          string
}

// CreateUser inserts a new account and returns its id. Returns ErrDuplicate
// when the username is already taken.
func (s *Store) CreateUser(username, passwordDigest, email string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users(username, password_digest, email) VALUES(?, ?, ?)`,
		username, passwordDigest, email,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return res.LastInsertId()
}

// UserByName returns the account with the given username, or ErrNotFound.
func (s *Store) UserByName(username string) (User, error) {
	var u User
	err := s.db.QueryRow(
		`SELECT id, username, password_digest, email FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordDigest, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// UserByID returns the account with the given id, or ErrNotFound.
func (s *Store) UserByID(id int64) (User, error) {
	var u User
	err := s.db.QueryRow(
		`SELECT id, username, password_digest, email FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Username, &u.PasswordDigest, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// UserCount returns the number of registered accounts.
func (s *Store) UserCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// isUniqueViolation matches the sqlite unique-constraint failure without
// depending on the driver's error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
