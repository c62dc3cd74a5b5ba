package main

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestPMPushOnlyWhenFocused(t *testing.T) {
	addr := startTestServer(t, 30*time.Second)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	alice.login("alice")

	bob := dialTestClient(t, addr)
	bob.register("bob")
	bob.login("bob")

	// Bob opens the chat with alice, so her messages push live.
	if got := bob.ok("PM_CHAT_START", "with=alice"); got != "messages=" {
		t.Fatalf("chat start: %q", got)
	}

	payload := alice.ok("PM_SEND", "to=bob content=aGk=")
	if payload != "msg_id=1" {
		t.Fatalf("send: %q", payload)
	}

	push := bob.expectPush("PM")
	if !strings.Contains(push, "from=alice") || !strings.Contains(push, "content=aGk=") {
		t.Fatalf("push: %q", push)
	}
	if !strings.Contains(push, "msg_id=1") {
		t.Fatalf("push: %q", push)
	}

	// After the chat closes, messages only accumulate as unread.
	bob.ok("PM_CHAT_END", "")
	alice.ok("PM_SEND", "to=bob content=YWdhaW4=")
	bob.expectNoPush()

	conv := bob.ok("PM_CONVERSATIONS", "")
	if conv != "conversations=alice:1" {
		t.Fatalf("conversations: %q", conv)
	}

	// Reopening the chat returns the history and clears the counter.
	hist := bob.ok("PM_CHAT_START", "with=alice")
	if !strings.HasPrefix(hist, "messages=1:alice:aGk=:") {
		t.Fatalf("history: %q", hist)
	}
	if !strings.Contains(hist, "2:alice:YWdhaW4=:") {
		t.Fatalf("history: %q", hist)
	}
	conv = bob.ok("PM_CONVERSATIONS", "")
	if conv != "conversations=alice:0" {
		t.Fatalf("conversations after read: %q", conv)
	}
}

func TestPMThirdPartyDoesNotInterrupt(t *testing.T) {
	addr := startTestServer(t, 30*time.Second)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	alice.login("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")
	bob.login("bob")
	carol := dialTestClient(t, addr)
	carol.register("carol")
	carol.login("carol")

	alice.ok("PM_CHAT_START", "with=bob")
	bob.ok("PM_CHAT_START", "with=alice")

	// Carol's message to bob must not break into the open chat.
	carol.ok("PM_SEND", "to=bob content=aW50cnVkZXI=")
	bob.expectNoPush()

	// Alice's message still pushes.
	alice.ok("PM_SEND", "to=bob content=aGV5")
	bob.expectPush("PM")

	conv := bob.ok("PM_CONVERSATIONS", "")
	if conv != "conversations=alice:0,carol:1" {
		t.Fatalf("conversations: %q", conv)
	}
}

func TestPMSendErrors(t *testing.T) {
	addr := startTestServer(t, 30*time.Second)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	alice.login("alice")

	alice.errReply("PM_SEND", "to=ghost content=aGk=", 404, "user_not_found")
	alice.errReply("PM_SEND", "to=alice content=aGk=", 400, "self_message")

	bob := dialTestClient(t, addr)
	bob.register("bob")

	alice.errReply("PM_SEND", "to=bob", 400, "missing_fields")
	alice.errReply("PM_SEND", "to=bob content=!!!notbase64!!!", 400, "invalid_base64")
	alice.errReply("PM_SEND", "to=bob content=", 400, "missing_fields")

	// Unauthenticated send.
	alice.mustErr("PM_SEND", "to=bob content=aGk=", 401, "invalid_token")
}

func TestPMContentRoundTrip(t *testing.T) {
	addr := startTestServer(t, 30*time.Second)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	alice.login("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")
	bob.login("bob")

	want := []byte("line one\r\nline two \x00\xff with spaces and = signs")
	alice.ok("PM_SEND", "to=bob content="+base64.StdEncoding.EncodeToString(want))

	hist := bob.ok("PM_HISTORY", "with=alice")
	entry := strings.TrimPrefix(hist, "messages=")
	parts := strings.Split(entry, ":")
	if len(parts) != 4 {
		t.Fatalf("history entry: %q", hist)
	}
	got, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip: got %q want %q", got, want)
	}
}

func TestPMHistoryLimit(t *testing.T) {
	addr := startTestServer(t, 30*time.Second)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	alice.login("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")
	bob.login("bob")

	for i := 0; i < 5; i++ {
		alice.ok("PM_SEND", "to=bob content=bXNn")
	}

	hist := bob.ok("PM_HISTORY", "with=alice limit=2")
	entries := strings.Split(strings.TrimPrefix(hist, "messages="), ",")
	if len(entries) != 2 {
		t.Fatalf("limit: %q", hist)
	}
	// Most recent two, oldest first.
	if !strings.HasPrefix(entries[0], "4:") || !strings.HasPrefix(entries[1], "5:") {
		t.Fatalf("order: %q", hist)
	}

	bob.errReply("PM_HISTORY", "with=alice limit=0", 400, "invalid_limit")
	bob.errReply("PM_HISTORY", "with=alice limit=nope", 400, "invalid_limit")
}

func TestPMFocusSwitchResetsUnread(t *testing.T) {
	addr := startTestServer(t, 30*time.Second)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	alice.login("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")
	bob.login("bob")
	carol := dialTestClient(t, addr)
	carol.register("carol")
	carol.login("carol")

	// Bob focused on alice; switching focus to carol stops alice's pushes.
	bob.ok("PM_CHAT_START", "with=alice")
	bob.ok("PM_CHAT_START", "with=carol")

	alice.ok("PM_SEND", "to=bob content=aGk=")
	bob.expectNoPush()

	carol.ok("PM_SEND", "to=bob content=aGk=")
	bob.expectPush("PM")
}
