package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"parley/server/internal/protocol"
	"parley/server/internal/store"
)

// handlerFunc processes one parsed request for one connection and returns
// the OK payload, or a protocol error that becomes a single ERR reply.
type handlerFunc func(conn *Conn, req *protocol.Request) (string, *protocol.Error)

func (s *Server) registerHandlers() {
	s.handlers = map[string]handlerFunc{
		"PING":       s.handlePing,
		"REGISTER":   s.handleRegister,
		"LOGIN":      s.handleLogin,
		"LOGOUT":     s.handleLogout,
		"WHOAMI":     s.handleWhoami,
		"DISCONNECT": s.handleDisconnect,

		"FRIEND_INVITE":  s.handleFriendInvite,
		"FRIEND_ACCEPT":  s.handleFriendAccept,
		"FRIEND_REJECT":  s.handleFriendReject,
		"FRIEND_DELETE":  s.handleFriendDelete,
		"FRIEND_PENDING": s.handleFriendPending,
		"FRIEND_LIST":    s.handleFriendList,

		"GROUP_CREATE":  s.handleGroupCreate,
		"GROUP_ADD":     s.handleGroupAdd,
		"GROUP_REMOVE":  s.handleGroupRemove,
		"GROUP_LEAVE":   s.handleGroupLeave,
		"GROUP_LIST":    s.handleGroupList,
		"GROUP_MEMBERS": s.handleGroupMembers,

		"PM_CHAT_START":    s.handlePMChatStart,
		"PM_CHAT_END":      s.handlePMChatEnd,
		"PM_SEND":          s.handlePMSend,
		"PM_HISTORY":       s.handlePMHistory,
		"PM_CONVERSATIONS": s.handlePMConversations,

		"GM_CHAT_START": s.handleGMChatStart,
		"GM_CHAT_END":   s.handleGMChatEnd,
		"GM_SEND":       s.handleGMSend,
		"GM_HISTORY":    s.handleGMHistory,
	}
}

// dispatch parses one line, runs the matching handler, and writes exactly
// one reply. It returns true when the connection must close afterwards
// (DISCONNECT). Replies go out under the connection's send mutex; a reply is
// always written before any push triggered by the same request on another
// connection can matter here.
func (s *Server) dispatch(conn *Conn, line string) bool {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		// Unparseable line: the req_id slot is unknown, echo "0".
		conn.WriteLine(protocol.EncodeErr("0", protocol.CodeBadRequest, "bad_request"))
		return false
	}

	metricRequestsTotal.WithLabelValues(req.Verb).Inc()

	h, ok := s.handlers[req.Verb]
	if !ok {
		conn.WriteLine(protocol.EncodeErr(req.ReqID, protocol.CodeNotFound, "unknown_command"))
		return false
	}

	payload, perr := h(conn, req)
	if perr != nil {
		conn.WriteLine(protocol.EncodeErr(req.ReqID, perr.Code, perr.Reason))
		return false
	}
	conn.WriteLine(protocol.EncodeOK(req.ReqID, payload))

	return req.Verb == "DISCONNECT"
}

// auth resolves the request's token to a user id, refreshing the session's
// idle clock. Absent, unknown, and expired tokens all map to 401.
func (s *Server) auth(req *protocol.Request) (int64, *protocol.Error) {
	userID, ok := s.sessions.Validate(req.Get("token"))
	if !ok {
		return 0, protocol.Errf(protocol.CodeUnauthorized, "invalid_token")
	}
	return userID, nil
}

var errMissingFields = protocol.Errf(protocol.CodeBadRequest, "missing_fields")

// require returns the values of the named keys, or missing_fields when any
// is absent or empty.
func require(req *protocol.Request, keys ...string) ([]string, *protocol.Error) {
	vals := make([]string, len(keys))
	for i, k := range keys {
		v := req.Get(k)
		if v == "" {
			return nil, errMissingFields
		}
		vals[i] = v
	}
	return vals, nil
}

// parseLimit reads the optional limit key, defaulting when absent.
func parseLimit(req *protocol.Request) (int, *protocol.Error) {
	raw := req.Get("limit")
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, protocol.Errf(protocol.CodeBadRequest, "invalid_limit")
	}
	return n, nil
}

func (s *Server) handlePing(_ *Conn, _ *protocol.Request) (string, *protocol.Error) {
	return "pong=1", nil
}

func (s *Server) handleRegister(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	vals, perr := require(req, "username", "password", "email")
	if perr != nil {
		return "", perr
	}
	username, password, email := vals[0], vals[1], vals[2]

	if !validUsername(username) || !validPassword(password) || !validEmail(email) {
		return "", protocol.Errf(protocol.CodeValidation, "invalid_fields")
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}

	userID, err := s.st.CreateUser(username, string(digest), email)
	if errors.Is(err, store.ErrDuplicate) {
		return "", protocol.Errf(protocol.CodeConflict, "username_exists")
	}
	if err != nil {
		slog.Error("create user", "err", err)
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}

	slog.Info("user registered", "username", username, "user_id", userID)
	return fmt.Sprintf("user_id=%d", userID), nil
}

func (s *Server) handleLogin(conn *Conn, req *protocol.Request) (string, *protocol.Error) {
	vals, perr := require(req, "username", "password")
	if perr != nil {
		return "", perr
	}
	username, password := vals[0], vals[1]

	u, err := s.st.UserByName(username)
	if errors.Is(err, store.ErrNotFound) {
		return "", protocol.Errf(protocol.CodeUnauthorized, "invalid_credentials")
	}
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordDigest), []byte(password)) != nil {
		return "", protocol.Errf(protocol.CodeUnauthorized, "invalid_credentials")
	}

	token, perr := s.sessions.Login(u.ID, conn.ID())
	if perr != nil {
		return "", perr
	}
	metricSessionsActive.Set(float64(s.sessions.Count()))
	slog.Info("login", "username", username, "conn_id", conn.ID())
	return fmt.Sprintf("token=%s user_id=%d", token, u.ID), nil
}

func (s *Server) handleLogout(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	if !s.sessions.Logout(req.Get("token")) {
		return "", protocol.Errf(protocol.CodeUnauthorized, "invalid_token")
	}
	metricSessionsActive.Set(float64(s.sessions.Count()))
	return "ok=1", nil
}

func (s *Server) handleWhoami(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	u, err := s.st.UserByID(userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return fmt.Sprintf("username=%s user_id=%d", u.Username, u.ID), nil
}

// handleDisconnect acknowledges, then dispatch closes the connection right
// after the reply is flushed. Session destruction and room exit happen in the
// normal connection-cleanup path, so a live room still sees the departure.
func (s *Server) handleDisconnect(_ *Conn, _ *protocol.Request) (string, *protocol.Error) {
	return "ok=1", nil
}
