// Package protocol implements the line-oriented wire protocol: CRLF framing
// with a hard length limit, request parsing, and reply/push encoding.
//
// A request line is `VERB req_id k=v k=v...`. Replies are `OK req_id ...` or
// `ERR req_id <code> <reason>`; server-originated pushes are
// `PUSH <subject> ...`. The req_id is opaque and echoed verbatim.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLineLen is the maximum length of a single line, excluding the CRLF
// terminator. A connection that exceeds it without a terminator is killed.
const MaxLineLen = 65535

// Numeric error codes carried in ERR replies.
const (
	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeValidation   = 422
	CodeInternal     = 500
)

// Error is a protocol-level failure that maps directly onto an ERR reply.
type Error struct {
	Code   int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Reason)
}

// Errf builds a protocol error with the given code and reason token.
func Errf(code int, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// ErrLineTooLong is returned by LineReader when a line exceeds MaxLineLen
// before a CRLF is seen. The caller must drop the connection.
var ErrLineTooLong = errors.New("protocol: line exceeds maximum length")

// Request is a parsed client request line.
type Request struct {
	Verb  string
	ReqID string
	keys  map[string]string
}

// Get returns the value for key, or "" when absent. Duplicate keys on the
// wire resolve to the last occurrence.
func (r *Request) Get(key string) string {
	return r.keys[key]
}

// Has reports whether key was present on the request line.
func (r *Request) Has(key string) bool {
	_, ok := r.keys[key]
	return ok
}

func isVerb(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && c != '_' {
			return false
		}
	}
	return true
}

// ParseRequest parses one framed line (without CRLF) into a Request.
// Tokens are separated by spaces; runs of spaces are tolerated. Payload
// tokens without an '=' are ignored, as are unknown keys downstream.
func ParseRequest(line string) (*Request, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("protocol: short request line")
	}
	if !isVerb(fields[0]) {
		return nil, fmt.Errorf("protocol: invalid verb %q", fields[0])
	}

	req := &Request{
		Verb:  fields[0],
		ReqID: fields[1],
		keys:  make(map[string]string, len(fields)-2),
	}
	for _, tok := range fields[2:] {
		eq := strings.IndexByte(tok, '=')
		if eq <= 0 {
			continue
		}
		req.keys[tok[:eq]] = tok[eq+1:]
	}
	return req, nil
}

// EncodeOK renders a success reply. An empty payload yields `OK <rid>`.
func EncodeOK(reqID, payload string) string {
	if payload == "" {
		return "OK " + reqID + "\r\n"
	}
	return "OK " + reqID + " " + payload + "\r\n"
}

// EncodeErr renders an error reply: `ERR <rid> <code> <reason>`.
func EncodeErr(reqID string, code int, reason string) string {
	if reason == "" {
		return fmt.Sprintf("ERR %s %d\r\n", reqID, code)
	}
	return fmt.Sprintf("ERR %s %d %s\r\n", reqID, code, reason)
}

// EncodePush renders a server push. The subject occupies the req_id slot;
// clients tell the three kinds apart by the first token alone.
func EncodePush(subject, payload string) string {
	if payload == "" {
		return "PUSH " + subject + "\r\n"
	}
	return "PUSH " + subject + " " + payload + "\r\n"
}
