package protocol

import (
	"strings"
	"testing"
)

func TestParseRequestBasic(t *testing.T) {
	req, err := ParseRequest("LOGIN 42 username=alice password=secret123")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Verb != "LOGIN" {
		t.Fatalf("verb: got %q", req.Verb)
	}
	if req.ReqID != "42" {
		t.Fatalf("req_id: got %q", req.ReqID)
	}
	if got := req.Get("username"); got != "alice" {
		t.Fatalf("username: got %q", got)
	}
	if got := req.Get("password"); got != "secret123" {
		t.Fatalf("password: got %q", got)
	}
}

func TestParseRequestDuplicateKeyLastWins(t *testing.T) {
	req, err := ParseRequest("PING 1 k=first k=second")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := req.Get("k"); got != "second" {
		t.Fatalf("duplicate key: got %q, want %q", got, "second")
	}
}

func TestParseRequestEqualsInValue(t *testing.T) {
	req, err := ParseRequest("PM_SEND 7 to=bob content=aGVsbG8=")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := req.Get("content"); got != "aGVsbG8=" {
		t.Fatalf("content: got %q", got)
	}
}

func TestParseRequestIgnoresBareTokens(t *testing.T) {
	req, err := ParseRequest("PING 1 stray k=v =orphan")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := req.Get("k"); got != "v" {
		t.Fatalf("k: got %q", got)
	}
	if req.Has("stray") {
		t.Fatal("bare token should not become a key")
	}
}

func TestParseRequestExtraSpaces(t *testing.T) {
	req, err := ParseRequest("PING   9   k=v")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.ReqID != "9" || req.Get("k") != "v" {
		t.Fatalf("unexpected parse: %+v", req)
	}
}

func TestParseRequestRejectsMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"PING",
		"ping 1",
		"LOGIN1 2",
		"   ",
	} {
		if _, err := ParseRequest(line); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
}

func TestEncodeReplies(t *testing.T) {
	if got := EncodeOK("3", "pong=1"); got != "OK 3 pong=1\r\n" {
		t.Fatalf("ok: got %q", got)
	}
	if got := EncodeOK("3", ""); got != "OK 3\r\n" {
		t.Fatalf("empty ok: got %q", got)
	}
	if got := EncodeErr("5", CodeNotFound, "unknown_command"); got != "ERR 5 404 unknown_command\r\n" {
		t.Fatalf("err: got %q", got)
	}
	if got := EncodePush("GM_KICKED", "group_id=12"); got != "PUSH GM_KICKED group_id=12\r\n" {
		t.Fatalf("push: got %q", got)
	}
}

func TestEncodedLinesEndWithSingleCRLF(t *testing.T) {
	for _, line := range []string{
		EncodeOK("1", "ok=1"),
		EncodeErr("1", CodeInternal, "server_error"),
		EncodePush("PM", "from=alice"),
	} {
		if !strings.HasSuffix(line, "\r\n") {
			t.Errorf("missing CRLF: %q", line)
		}
		if strings.Count(line, "\r\n") != 1 {
			t.Errorf("embedded CRLF: %q", line)
		}
	}
}
