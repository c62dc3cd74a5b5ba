package main

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"parley/server/internal/protocol"
	"parley/server/internal/store"
)

// unreadKey identifies one ordered (viewer, peer) unread counter.
type unreadKey struct {
	viewer int64
	peer   int64
}

// UnreadCounters tracks, per ordered (viewer, peer) pair, how many private
// messages arrived while the viewer was not focused on that peer. In-memory
// only: the counters restart at zero with the process.
type UnreadCounters struct {
	mu     sync.Mutex
	counts map[unreadKey]int
}

func NewUnreadCounters() *UnreadCounters {
	return &UnreadCounters{counts: make(map[unreadKey]int)}
}

// Inc bumps the viewer's unread count for peer by one.
func (u *UnreadCounters) Inc(viewer, peer int64) {
	u.mu.Lock()
	u.counts[unreadKey{viewer, peer}]++
	u.mu.Unlock()
}

// Reset zeroes the viewer's unread count for peer.
func (u *UnreadCounters) Reset(viewer, peer int64) {
	u.mu.Lock()
	delete(u.counts, unreadKey{viewer, peer})
	u.mu.Unlock()
}

// Get returns the viewer's unread count for peer.
func (u *UnreadCounters) Get(viewer, peer int64) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[unreadKey{viewer, peer}]
}

// decodeContent reads and base64-decodes the content key. Malformed base64
// and empty decoded content are both rejected.
func decodeContent(req *protocol.Request) ([]byte, *protocol.Error) {
	raw := req.Get("content")
	if raw == "" {
		return nil, errMissingFields
	}
	content, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, protocol.Errf(protocol.CodeBadRequest, "invalid_base64")
	}
	if len(content) == 0 {
		return nil, protocol.Errf(protocol.CodeBadRequest, "empty_content")
	}
	return content, nil
}

func encodeContent(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}

// formatMessages renders history entries as
// `messages=<id>:<from>:<content_b64>:<ts>,...`, oldest first.
func formatMessages(msgs []store.Message) string {
	entries := make([]string, len(msgs))
	for i, m := range msgs {
		entries[i] = fmt.Sprintf("%d:%s:%s:%d", m.MsgID, m.FromName, encodeContent(m.Content), m.Ts)
	}
	return "messages=" + strings.Join(entries, ",")
}

func (s *Server) handlePMSend(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	vals, perr := require(req, "to")
	if perr != nil {
		return "", perr
	}
	recipient, perr := s.resolveUser(vals[0])
	if perr != nil {
		return "", perr
	}
	if recipient.ID == userID {
		return "", protocol.Errf(protocol.CodeBadRequest, "self_message")
	}
	content, perr := decodeContent(req)
	if perr != nil {
		return "", perr
	}
	sender, err := s.st.UserByID(userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}

	ts := time.Now().Unix()
	msgID, err := s.st.AppendPM(userID, recipient.ID, content, ts)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	metricMessagesTotal.WithLabelValues("pm").Inc()

	// Live delivery: push only when the recipient's connection is focused on
	// this exact sender; otherwise the message surfaces later through the
	// unread counter. A third party must never push-interrupt an open chat.
	delivered := false
	if connID, ok := s.sessions.ConnOfUser(recipient.ID); ok {
		if rc := s.registry.Get(connID); rc != nil {
			focus := rc.Focus()
			if focus.Kind == FocusPM && focus.PeerID == userID {
				rc.WriteLine(protocol.EncodePush("PM", fmt.Sprintf(
					"from=%s content=%s msg_id=%d ts=%d",
					sender.Username, encodeContent(content), msgID, ts)))
				metricPushesTotal.WithLabelValues("PM").Inc()
				delivered = true
			}
		}
	}
	if !delivered {
		s.unread.Inc(recipient.ID, userID)
	}

	return fmt.Sprintf("msg_id=%d", msgID), nil
}

func (s *Server) handlePMChatStart(conn *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	vals, perr := require(req, "with")
	if perr != nil {
		return "", perr
	}
	peer, perr := s.resolveUser(vals[0])
	if perr != nil {
		return "", perr
	}
	u, err := s.st.UserByID(userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}

	s.releaseFocus(conn, userID, u.Username)
	conn.SetFocus(ChatFocus{Kind: FocusPM, PeerID: peer.ID})
	s.unread.Reset(userID, peer.ID)

	history, err := s.st.PMHistory(userID, peer.ID, defaultHistoryLimit)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return formatMessages(history), nil
}

func (s *Server) handlePMChatEnd(conn *Conn, req *protocol.Request) (string, *protocol.Error) {
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

func (s *Server) handlePMHistory(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	vals, perr := require(req, "with")
	if perr != nil {
		return "", perr
	}
	peer, perr := s.resolveUser(vals[0])
	if perr != nil {
		return "", perr
	}
	limit, perr := parseLimit(req)
	if perr != nil {
		return "", perr
	}
	history, err := s.st.PMHistory(userID, peer.ID, limit)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return formatMessages(history), nil
}

func (s *Server) handlePMConversations(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	peers, err := s.st.PMPeers(userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	entries := make([]string, len(peers))
	for i, p := range peers {
		entries[i] = fmt.Sprintf("%s:%d", p.Username, s.unread.Get(userID, p.ID))
	}
	return "conversations=" + strings.Join(entries, ","), nil
}
