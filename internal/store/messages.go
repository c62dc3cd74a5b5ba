package store

import "database/sql"

// Message is one archived chat message, private or group. FromName is
// resolved at query time for history rendering.
type Message struct {
	MsgID    int64
	FromID   int64
	FromName string
	Content  []byte
	Ts       int64
}

// AppendPM archives a private message and returns its msg_id, which is
// monotonic within the conversation (both directions of the pair). The id is
// computed and the row inserted in a single statement so concurrent senders
// cannot collide.
func (s *Store) AppendPM(fromID, toID int64, content []byte, ts int64) (int64, error) {
	var msgID int64
	err := s.db.QueryRow(
		`INSERT INTO pm_messages(msg_id, from_id, to_id, content, ts)
		 SELECT COALESCE(MAX(msg_id), 0) + 1, ?, ?, ?, ?
		 FROM pm_messages
		 WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)
		 RETURNING msg_id`,
		fromID, toID, content, ts, fromID, toID, toID, fromID,
	).Scan(&msgID)
	return msgID, err
}

// PMHistory returns the most recent `limit` messages exchanged between a and
// b (both directions), oldest first. Arrival order is the rowid.
func (s *Store) PMHistory(a, b int64, limit int) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT m.msg_id, m.from_id, u.username, m.content, m.ts
		 FROM (
			SELECT id, msg_id, from_id, content, ts FROM pm_messages
			WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)
			ORDER BY id DESC LIMIT ?
		 ) m JOIN users u ON u.id = m.from_id
		 ORDER BY m.id ASC`,
		a, b, b, a, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// PMPeers returns every user that has exchanged at least one private message
// with userID, ordered by username.
func (s *Store) PMPeers(userID int64) ([]User, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.username, u.password_digest, u.email
		 FROM users u
		 WHERE u.id IN (
			SELECT to_id FROM pm_messages WHERE from_id = ?
			UNION
			SELECT from_id FROM pm_messages WHERE to_id = ?
		 )
		 ORDER BY u.username ASC`,
		userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// AppendGM archives a group message and returns its msg_id, monotonic within
// the group across all senders.
func (s *Store) AppendGM(groupID, fromID int64, content []byte, ts int64) (int64, error) {
	var msgID int64
	err := s.db.QueryRow(
		`INSERT INTO gm_messages(msg_id, group_id, from_id, content, ts)
		 SELECT COALESCE(MAX(msg_id), 0) + 1, ?, ?, ?, ?
		 FROM gm_messages WHERE group_id = ?
		 RETURNING msg_id`,
		groupID, fromID, content, ts, groupID,
	).Scan(&msgID)
	return msgID, err
}

// GMHistory returns the most recent `limit` messages in the group, oldest
// first.
func (s *Store) GMHistory(groupID int64, limit int) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT m.msg_id, m.from_id, u.username, m.content, m.ts
		 FROM (
			SELECT id, msg_id, from_id, content, ts FROM gm_messages
			WHERE group_id = ? ORDER BY id DESC LIMIT ?
		 ) m JOIN users u ON u.id = m.from_id
		 ORDER BY m.id ASC`,
		groupID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MessageCounts returns the total number of archived private and group
// messages. Used by the status subcommand and the admin API.
func (s *Store) MessageCounts() (pm, gm int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM pm_messages`).Scan(&pm); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM gm_messages`).Scan(&gm); err != nil {
		return 0, 0, err
	}
	return pm, gm, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.MsgID, &m.FromID, &m.FromName, &m.Content, &m.Ts); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
