package main

import (
	"testing"
	"time"
)

func TestFriendInviteAcceptFlow(t *testing.T) {
	addr := startTestServer(t, 30*time.Second)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	alice.login("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")
	bob.login("bob")

	alice.ok("FRIEND_INVITE", "username=bob")
	if got := bob.ok("FRIEND_PENDING", ""); got != "username=alice" {
		t.Fatalf("pending: %q", got)
	}
	if got := alice.ok("FRIEND_PENDING", ""); got != "username=" {
		t.Fatalf("inviter pending: %q", got)
	}

	bob.ok("FRIEND_ACCEPT", "username=alice")
	if got := alice.ok("FRIEND_LIST", ""); got != "friends=bob:online" {
		t.Fatalf("alice friends: %q", got)
	}
	if got := bob.ok("FRIEND_LIST", ""); got != "friends=alice:online" {
		t.Fatalf("bob friends: %q", got)
	}
	if got := bob.ok("FRIEND_PENDING", ""); got != "username=" {
		t.Fatalf("pending after accept: %q", got)
	}
}

func TestFriendListPresence(t *testing.T) {
	addr := startTestServer(t, 30*time.Second)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	alice.login("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")
	bob.login("bob")

	alice.ok("FRIEND_INVITE", "username=bob")
	bob.ok("FRIEND_ACCEPT", "username=alice")

	bob.ok("LOGOUT", "")
	if got := alice.ok("FRIEND_LIST", ""); got != "friends=bob:offline" {
		t.Fatalf("friends: %q", got)
	}
	bob.login("bob")
	if got := alice.ok("FRIEND_LIST", ""); got != "friends=bob:online" {
		t.Fatalf("friends: %q", got)
	}
}

func TestFriendInviteErrors(t *testing.T) {
	addr := startTestServer(t, 30*time.Second)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	alice.login("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")
	bob.login("bob")

	alice.errReply("FRIEND_INVITE", "username=alice", 400, "self_invite")
	alice.errReply("FRIEND_INVITE", "username=ghost", 404, "user_not_found")
	alice.errReply("FRIEND_INVITE", "", 400, "missing_fields")

	alice.ok("FRIEND_INVITE", "username=bob")
	alice.errReply("FRIEND_INVITE", "username=bob", 409, "already_pending")
	// A counter-invite is blocked too; bob should accept instead.
	bob.errReply("FRIEND_INVITE", "username=alice", 409, "already_pending")

	bob.ok("FRIEND_ACCEPT", "username=alice")
	alice.errReply("FRIEND_INVITE", "username=bob", 409, "already_friends")
	bob.errReply("FRIEND_ACCEPT", "username=alice", 404, "no_invite")
}

func TestFriendRejectAndDeleteFlow(t *testing.T) {
	addr := startTestServer(t, 30*time.Second)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	alice.login("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")
	bob.login("bob")

	alice.ok("FRIEND_INVITE", "username=bob")
	bob.ok("FRIEND_REJECT", "username=alice")
	if got := bob.ok("FRIEND_PENDING", ""); got != "username=" {
		t.Fatalf("pending after reject: %q", got)
	}
	bob.errReply("FRIEND_REJECT", "username=alice", 404, "no_invite")

	// A reject is not a block: alice can invite again.
	alice.ok("FRIEND_INVITE", "username=bob")
	bob.ok("FRIEND_ACCEPT", "username=alice")

	// Either side can delete the friendship.
	bob.ok("FRIEND_DELETE", "username=alice")
	if got := alice.ok("FRIEND_LIST", ""); got != "friends=" {
		t.Fatalf("friends after delete: %q", got)
	}
	alice.errReply("FRIEND_DELETE", "username=bob", 404, "not_friends")
}
