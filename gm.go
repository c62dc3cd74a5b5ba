package main

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"parley/server/internal/protocol"
)

// Rooms tracks, per group, the set of connections whose chat focus is that
// group (the "live room"). Only those connections receive GM pushes.
type Rooms struct {
	mu      sync.Mutex
	byGroup map[int64]map[uint64]*Conn
}

func NewRooms() *Rooms {
	return &Rooms{byGroup: make(map[int64]map[uint64]*Conn)}
}

// Join adds conn to the group's live room.
func (r *Rooms) Join(groupID int64, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byGroup[groupID]
	if !ok {
		room = make(map[uint64]*Conn)
		r.byGroup[groupID] = room
	}
	room[conn.ID()] = conn
}

// Leave removes connID from the group's live room.
func (r *Rooms) Leave(groupID int64, connID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.byGroup[groupID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.byGroup, groupID)
		}
	}
}

// Snapshot returns the room's connections. Callers push outside the lock,
// taking each connection's send mutex only after this returns.
func (r *Rooms) Snapshot(groupID int64) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.byGroup[groupID]
	out := make([]*Conn, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

// pushRoom fans a push line out to every live-room connection except the one
// with excludeID. Pass excludeID 0 to reach the whole room.
func (s *Server) pushRoom(groupID int64, excludeID uint64, subject, payload string) {
	line := protocol.EncodePush(subject, payload)
	for _, c := range s.rooms.Snapshot(groupID) {
		if c.ID() == excludeID {
			continue
		}
		c.WriteLine(line)
		metricPushesTotal.WithLabelValues(subject).Inc()
	}
}

// leaveRoom removes conn from the room and notifies the remaining members.
func (s *Server) leaveRoom(conn *Conn, groupID int64, username string) {
	s.rooms.Leave(groupID, conn.ID())
	if username != "" {
		s.pushRoom(groupID, conn.ID(), "GM_LEAVE",
			fmt.Sprintf("group_id=%d username=%s", groupID, username))
	}
}

// releaseFocus unwinds a connection's current chat focus: leaving a PM focus
// resets the unread counter for the peer that was on screen, leaving a GM
// focus exits the live room and announces the departure.
func (s *Server) releaseFocus(conn *Conn, userID int64, username string) {
	prev := conn.ClearFocus()
	switch prev.Kind {
	case FocusPM:
		s.unread.Reset(userID, prev.PeerID)
	case FocusGM:
		s.leaveRoom(conn, prev.GroupID, username)
	}
}

// parseGroupID reads the mandatory group_id key.
func parseGroupID(req *protocol.Request) (int64, *protocol.Error) {
	raw := req.Get("group_id")
	if raw == "" {
		return 0, errMissingFields
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, protocol.Errf(protocol.CodeBadRequest, "invalid_group_id")
	}
	return id, nil
}

// requireMember checks that the group exists and the user belongs to it.
func (s *Server) requireMember(groupID, userID int64) *protocol.Error {
	if _, perr := s.groupByID(groupID); perr != nil {
		return perr
	}
	member, err := s.st.IsMember(groupID, userID)
	if err != nil {
		return protocol.Errf(protocol.CodeInternal, "server_error")
	}
	if !member {
		return protocol.Errf(protocol.CodeForbidden, "not_member")
	}
	return nil
}

func (s *Server) handleGMChatStart(conn *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	groupID, perr := parseGroupID(req)
	if perr != nil {
		return "", perr
	}
	if perr := s.requireMember(groupID, userID); perr != nil {
		return "", perr
	}
	u, err := s.st.UserByID(userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}

	s.releaseFocus(conn, userID, u.Username)

	history, err := s.st.GMHistory(groupID, defaultHistoryLimit)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}

	// Announce to the room before joining so the caller does not see its
	// own GM_JOIN.
	s.pushRoom(groupID, 0, "GM_JOIN",
		fmt.Sprintf("group_id=%d username=%s", groupID, u.Username))

	s.rooms.Join(groupID, conn)
	conn.SetFocus(ChatFocus{Kind: FocusGM, GroupID: groupID})

	return formatMessages(history), nil
}

func (s *Server) handleGMChatEnd(conn *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	u, err := s.st.UserByID(userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	s.releaseFocus(conn, userID, u.Username)
	return "ok=1", nil
}

func (s *Server) handleGMSend(conn *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	groupID, perr := parseGroupID(req)
	if perr != nil {
		return "", perr
	}
	if perr := s.requireMember(groupID, userID); perr != nil {
		return "", perr
	}
	content, perr := decodeContent(req)
	if perr != nil {
		return "", perr
	}
	u, err := s.st.UserByID(userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}

	ts := time.Now().Unix()
	msgID, err := s.st.AppendGM(groupID, userID, content, ts)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	metricMessagesTotal.WithLabelValues("gm").Inc()

	s.pushRoom(groupID, conn.ID(), "GM", fmt.Sprintf(
		"group_id=%d from=%s content=%s msg_id=%d ts=%d",
		groupID, u.Username, encodeContent(content), msgID, ts))

	return fmt.Sprintf("msg_id=%d", msgID), nil
}

func (s *Server) handleGMHistory(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	groupID, perr := parseGroupID(req)
	if perr != nil {
		return "", perr
	}
	if perr := s.requireMember(groupID, userID); perr != nil {
		return "", perr
	}
	limit, perr := parseLimit(req)
	if perr != nil {
		return "", perr
	}
	history, err := s.st.GMHistory(groupID, limit)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return formatMessages(history), nil
}
