package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"parley/server/internal/protocol"
	"parley/server/internal/store"
)

// Server is the TCP chat server engine: listener, connection registry,
// session manager, live rooms, and the verb dispatch table.
type Server struct {
	addr     string
	st       *store.Store
	registry *Registry
	sessions *SessionManager
	rooms    *Rooms
	unread   *UnreadCounters

	handlers map[string]handlerFunc
}

// NewServer wires the engine together. idle is the session idle timeout.
func NewServer(addr string, st *store.Store, idle time.Duration) *Server {
	s := &Server{
		addr:     addr,
		st:       st,
		registry: NewRegistry(),
		sessions: NewSessionManager(idle),
		rooms:    NewRooms(),
		unread:   NewUnreadCounters(),
	}
	s.registerHandlers()
	return s
}

// Addr returns the listener address once Run has bound it.
func (s *Server) Addr() string { return s.addr }

// Connections returns the number of live connections (admin API).
func (s *Server) Connections() int { return s.registry.Count() }

// Sessions returns the number of live sessions (admin API).
func (s *Server) Sessions() int { return s.sessions.Count() }

// Run binds the listener, reports readiness on ready (if non-nil), and
// accepts connections until ctx is canceled.
func (s *Server) Run(ctx context.Context, ready chan<- string) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	if ready != nil {
		ready <- s.addr
	}

	go s.sessions.RunReaper(ctx, reaperInterval)
	go s.logStats(ctx)

	go func() {
		<-ctx.Done()
		ln.Close()
		s.registry.CloseAll()
	}()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("accept", "err", err)
			continue
		}
		go s.handleConn(netConn)
	}
}

// handleConn runs the read loop for one connection: frame, parse, dispatch.
// Any framing failure (overlong line, I/O error, peer close) ends the loop;
// cleanup destroys the bound session and leaves any live room.
func (s *Server) handleConn(netConn net.Conn) {
	conn := s.registry.Add(netConn)
	metricConnectionsOpen.Inc()
	slog.Debug("connection open", "conn_id", conn.ID(), "remote", netConn.RemoteAddr())

	defer func() {
		s.cleanupConn(conn)
		netConn.Close()
		metricConnectionsOpen.Dec()
		slog.Debug("connection closed", "conn_id", conn.ID())
	}()

	lr := protocol.NewLineReader(netConn)
	for {
		line, err := lr.ReadLine()
		if err != nil {
			if errors.Is(err, protocol.ErrLineTooLong) {
				slog.Warn("overlong line, dropping connection", "conn_id", conn.ID())
			}
			return
		}
		if closeAfter := s.dispatch(conn, line); closeAfter {
			return
		}
	}
}

// cleanupConn tears down everything bound to a dying connection, in the
// order close → session destruction → room removal.
func (s *Server) cleanupConn(conn *Conn) {
	username := s.usernameOfConn(conn.ID())
	s.sessions.DropConn(conn.ID())
	if prev := conn.ClearFocus(); prev.Kind == FocusGM {
		s.leaveRoom(conn, prev.GroupID, username)
	}
	s.registry.Remove(conn.ID())
}

// logStats reports connection and session counts once per minute and keeps
// the sessions gauge honest after reaper sweeps.
func (s *Server) logStats(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions := s.sessions.Count()
			metricSessionsActive.Set(float64(sessions))
			slog.Debug("stats", "connections", s.registry.Count(), "sessions", sessions)
		}
	}
}

// usernameOfConn resolves the username bound to a connection's session, or
// "" when the connection is unauthenticated.
func (s *Server) usernameOfConn(connID uint64) string {
	userID, ok := s.sessions.UserOfConn(connID)
	if !ok {
		return ""
	}
	u, err := s.st.UserByID(userID)
	if err != nil {
		return ""
	}
	return u.Username
}
