package main

import (
	"errors"
	"fmt"
	"strings"

	"parley/server/internal/protocol"
	"parley/server/internal/store"
)

// groupByID maps a group id to the stored group.
func (s *Server) groupByID(groupID int64) (store.Group, *protocol.Error) {
	g, err := s.st.GroupByID(groupID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Group{}, protocol.Errf(protocol.CodeNotFound, "group_not_found")
	}
	if err != nil {
		return store.Group{}, protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return g, nil
}

func (s *Server) handleGroupCreate(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	vals, perr := require(req, "name")
	if perr != nil {
		return "", perr
	}
	name, ok := validGroupName(vals[0])
	if !ok {
		return "", protocol.Errf(protocol.CodeBadRequest, "invalid_name")
	}

	groupID, err := s.st.CreateGroup(name, userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return fmt.Sprintf("group_id=%d", groupID), nil
}

func (s *Server) handleGroupAdd(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	groupID, perr := parseGroupID(req)
	if perr != nil {
		return "", perr
	}
	vals, perr := require(req, "username")
	if perr != nil {
		return "", perr
	}

	g, perr := s.groupByID(groupID)
	if perr != nil {
		return "", perr
	}
	if g.OwnerID != userID {
		return "", protocol.Errf(protocol.CodeForbidden, "not_owner")
	}
	target, perr := s.resolveUser(vals[0])
	if perr != nil {
		return "", perr
	}

	err := s.st.AddMember(groupID, target.ID)
	if errors.Is(err, store.ErrDuplicate) {
		return "", protocol.Errf(protocol.CodeConflict, "already_member")
	}
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	return "ok=1", nil
}

// handleGroupRemove removes a member; only the owner may do so, and the
// owner itself can never be removed (the owner-in-members invariant holds
// for the group's whole lifetime). A removed member that is live in the
// group's room is kicked: GM_KICKED push, room exit, focus cleared.
func (s *Server) handleGroupRemove(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	groupID, perr := parseGroupID(req)
	if perr != nil {
		return "", perr
	}
	vals, perr := require(req, "username")
	if perr != nil {
		return "", perr
	}

	g, perr := s.groupByID(groupID)
	if perr != nil {
		return "", perr
	}
	if g.OwnerID != userID {
		return "", protocol.Errf(protocol.CodeForbidden, "not_owner")
	}
	target, perr := s.resolveUser(vals[0])
	if perr != nil {
		return "", perr
	}
	if target.ID == g.OwnerID {
		return "", protocol.Errf(protocol.CodeBadRequest, "cannot_remove_owner")
	}

	err := s.st.RemoveMember(groupID, target.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "", protocol.Errf(protocol.CodeNotFound, "not_member")
	}
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}

	s.kickFromRoom(groupID, target.ID)
	return "ok=1", nil
}

// kickFromRoom ejects the user's live connection from the group's room, if
// it is there: GM_KICKED push to the victim, then silent room removal and
// focus clear. The victim receives no further pushes for this group.
func (s *Server) kickFromRoom(groupID, targetID int64) {
	connID, ok := s.sessions.ConnOfUser(targetID)
	if !ok {
		return
	}
	conn := s.registry.Get(connID)
	if conn == nil {
		return
	}
	focus := conn.Focus()
	if focus.Kind != FocusGM || focus.GroupID != groupID {
		return
	}
	conn.WriteLine(protocol.EncodePush("GM_KICKED", fmt.Sprintf("group_id=%d", groupID)))
	metricPushesTotal.WithLabelValues("GM_KICKED").Inc()
	s.rooms.Leave(groupID, connID)
	conn.ClearFocus()
}

func (s *Server) handleGroupLeave(conn *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	groupID, perr := parseGroupID(req)
	if perr != nil {
		return "", perr
	}
	g, perr := s.groupByID(groupID)
	if perr != nil {
		return "", perr
	}
	if g.OwnerID == userID {
		return "", protocol.Errf(protocol.CodeBadRequest, "owner_cannot_leave")
	}

	err := s.st.RemoveMember(groupID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", protocol.Errf(protocol.CodeForbidden, "not_member")
	}
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}

	// Leaving the group also leaves its live room, if focused there.
	if focus := conn.Focus(); focus.Kind == FocusGM && focus.GroupID == groupID {
		conn.ClearFocus()
		u, err := s.st.UserByID(userID)
		name := ""
		if err == nil {
			name = u.Username
		}
		s.leaveRoom(conn, groupID, name)
	}
	return "ok=1", nil
}

func (s *Server) handleGroupList(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
	userID, perr := s.auth(req)
	if perr != nil {
		return "", perr
	}
	groups, err := s.st.GroupsOf(userID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	entries := make([]string, len(groups))
	for i, g := range groups {
		entries[i] = fmt.Sprintf("%d:%s", g.ID, g.Name)
	}
	return "groups=" + strings.Join(entries, ","), nil
}

func (s *Server) handleGroupMembers(_ *Conn, req *protocol.Request) (string, *protocol.Error) {
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
	members, err := s.st.Members(groupID)
	if err != nil {
		return "", protocol.Errf(protocol.CodeInternal, "server_error")
	}
	names := make([]string, len(members))
	for i, u := range members {
		names[i] = u.Username
	}
	return "members=" + strings.Join(names, ","), nil
}
