// ABOUTME: Tests for request identity context helpers
// ABOUTME: Covers anonymous contexts and admin role detection

package auth

import (
	"context"
	"testing"
)

func TestFromContext(t *testing.T) {
	rc := FromContext(context.Background())
	if rc.Authenticated() {
		t.Error("empty context should be anonymous")
	}
	if rc.UserID() != "" {
		t.Errorf("UserID() = %q, want empty", rc.UserID())
	}

	ctx := WithIdentity(context.Background(), &Identity{ID: "u1"})
	rc = FromContext(ctx)
	if !rc.Authenticated() || rc.UserID() != "u1" {
		t.Errorf("FromContext() = %+v", rc)
	}
	if UserIDFromContext(ctx) != "u1" {
		t.Errorf("UserIDFromContext() = %q", UserIDFromContext(ctx))
	}
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{"admin", true},
		{"Admin", true},
		{"super_admin", true},
		{"ADMINISTRATOR", true},
		{"org:admin", true},
		{"super-admin", true},
		{"user", false},
		{"not_admin", false},
		{"non-admin", false},
		{"readmin_pending", false},
		{"admin_pending", false},
		{"badminton", false},
		{"_-_", false},
		{"", false},
		{"moderator", false},
	}
	for _, tt := range tests {
		if got := IsAdmin(tt.role); got != tt.want {
			t.Errorf("IsAdmin(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}

	var nilIdentity *Identity
	if nilIdentity.IsAdmin() {
		t.Error("nil identity is never an admin")
	}
}
