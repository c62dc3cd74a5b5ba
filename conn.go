package main

import (
	"net"
	"sync"
	"sync/atomic"
)

// FocusKind tags the at-most-one open chat on a connection.
type FocusKind int

const (
	FocusNone FocusKind = iota
	FocusPM
	FocusGM
)

// ChatFocus is the "currently open chat" of a connection. It governs whether
// an incoming message is pushed live or only archived.
type ChatFocus struct {
	Kind    FocusKind
	PeerID  int64 // set when Kind == FocusPM
	GroupID int64 // set when Kind == FocusGM
}

// Conn is one live TCP connection. Byte writes are serialised by sendMu so
// replies and pushes never interleave; mu guards the mutable chat focus.
type Conn struct {
	id      uint64
	netConn net.Conn

	sendMu sync.Mutex

	mu    sync.Mutex
	focus ChatFocus
}

// ID returns the registry identifier of the connection.
func (c *Conn) ID() uint64 { return c.id }

// WriteLine writes one pre-framed line (already CRLF-terminated) under the
// send mutex.
func (c *Conn) WriteLine(line string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_, err := c.netConn.Write([]byte(line))
	return err
}

// Focus returns the connection's current chat focus.
func (c *Conn) Focus() ChatFocus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focus
}

// SetFocus replaces the connection's chat focus.
func (c *Conn) SetFocus(f ChatFocus) {
	c.mu.Lock()
	c.focus = f
	c.mu.Unlock()
}

// ClearFocus resets the focus to none and returns what it was.
func (c *Conn) ClearFocus() ChatFocus {
	c.mu.Lock()
	prev := c.focus
	c.focus = ChatFocus{}
	c.mu.Unlock()
	return prev
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	return c.netConn.Close()
}

// Registry tracks every live connection. Sockets are owned here for their
// whole lifetime; removal is the signal for session and room cleanup.
type Registry struct {
	mu     sync.RWMutex
	conns  map[uint64]*Conn
	nextID atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint64]*Conn)}
}

// Add wraps netConn in a Conn, assigns it an id, and registers it.
func (r *Registry) Add(netConn net.Conn) *Conn {
	c := &Conn{id: r.nextID.Add(1), netConn: netConn}
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
	return c
}

// Remove unregisters a connection by id.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Get returns the connection with the given id, or nil if it is gone.
func (r *Registry) Get(id uint64) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll force-closes every live connection (shutdown path).
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	for _, c := range conns {
		c.Close()
	}
}
