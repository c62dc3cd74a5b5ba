package main

import (
	"errors"
	"strings"

	"parley/server/internal/protocol"
	"parley/server/internal/store"
)

// resolveUser maps a username payload field to the stored account.
func (s *Server) resolveUser(username string) (store.User, *protocol.Error) {
	u, err := s.st.UserByName(username)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, protocol.Errf(protocol.CodeNotFound, "user_not_found")
	}
	if err != nil {
		return store.User{}, protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return u, nil
}

func (s *Server) handleFriendInvite(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	vals, perr := require(req, "username")
	if perr != nil {
		return "", perr
	}
	target, perr := s.resolveUser(vals[0])
	if perr != nil {
		return "", perr
	}
	if target.ID == userID {
		return "", protocol.Errf(protocol.CodeBadRequest, "self_invite")
	}

	friends, err := s.st.AreFriends(userID, target.ID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	if friends {
		return "", protocol.Errf(protocol.CodeConflict, "already_friends")
	}
	// A pending invite in either direction blocks a new one; the invitee
	// should accept instead of counter-inviting.
	for _, pair := range [][2]int64{{userID, target.ID}, {target.ID, userID}} {
		pending, err := s.st.HasInvite(pair[0], pair[1])
		if err != nil {
			return "", protocol.Errf(protocol.CodeInternal, "server_error")
		}
		if pending {
			return "", protocol.Errf(protocol.CodeConflict, "already_pending")
		}
	}

	if err := s.st.CreateInvite(userID, target.ID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return "", protocol.Errf(protocol.CodeConflict, "already_pending")
		}
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return "ok=1", nil
}

func (s *Server) handleFriendAccept(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	vals, perr := require(req, "username")
	if perr != nil {
		return "", perr
	}
	inviter, perr := s.resolveUser(vals[0])
	if perr != nil {
		return "", perr
	}

	err := s.st.AcceptInvite(inviter.ID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", protocol.Errf(protocol.CodeNotFound, "no_invite")
	}
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return "ok=1", nil
}

func (s *Server) handleFriendReject(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	vals, perr := require(req, "username")
	if perr != nil {
		return "", perr
	}
	inviter, perr := s.resolveUser(vals[0])
	if perr != nil {
		return "", perr
	}

	err := s.st.DeleteInvite(inviter.ID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", protocol.Errf(protocol.CodeNotFound, "no_invite")
	}
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return "ok=1", nil
}

func (s *Server) handleFriendDelete(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	vals, perr := require(req, "username")
	if perr != nil {
		return "", perr
	}
	target, perr := s.resolveUser(vals[0])
	if perr != nil {
		return "", perr
	}

	err := s.st.DeleteFriendship(userID, target.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "", protocol.Errf(protocol.CodeNotFound, "not_friends")
	}
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return "ok=1", nil
}

func (s *Server) handleFriendPending(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	inviters, err := s.st.PendingInvites(userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	names := make([]string, len(inviters))
	for i, u := range inviters {
		names[i] = u.Username
	}
	return "username=" + strings.Join(names, ","), nil
}

func (s *Server) handleFriendList(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	friends, err := s.st.Friends(userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	entries := make([]string, len(friends))
	for i, u := range friends {
		presence := "offline"
		if s.sessions.IsOnline(u.ID) {
			presence = "online"
		}
		entries[i] = u.Username + ":" + presence
	}
	return "friends=" + strings.Join(entries, ","), nil
}
