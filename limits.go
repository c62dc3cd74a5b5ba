package main

import (
	"regexp"
	"strings"
	"time"
)

// Operational limits and validation rules for account fields and group names.
const (
	MinUsernameLen = 3
	MaxUsernameLen = 32
	MinPasswordLen = 6
	MaxGroupName   = 64

	// defaultHistoryLimit is how many messages PM/GM history and chat-start
	// return when the client does not ask for a specific count.
	defaultHistoryLimit = 50

	// reaperInterval is how often the idle reaper sweeps sessions.
	reaperInterval = time.Second
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// validUsername checks the username pattern: 3..32 chars, [A-Za-z0-9_] only.
func validUsername(s string) bool {
	return usernameRe.MatchString(s)
}

// validPassword checks the minimum password length.
func validPassword(s string) bool {
	return len(s) >= MinPasswordLen
}

// validEmail checks the required email shape: a local part, an '@', and a
// domain containing a '.'.
func validEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// validGroupName trims whitespace and reports whether the result is a usable
// group name.
func validGroupName(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > MaxGroupName {
		return "", false
	}
	return s, true
}
