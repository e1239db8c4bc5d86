package httpapi

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"shopbill/backend/internal/domain"
	"shopbill/backend/internal/store"
	"shopbill/backend/internal/store/memory"
)

func newTestAuthManager() *AuthManager {
	return NewAuthManager("unit-test-secret-key-at-least-32-chars", time.Hour, memory.New(), "", "")
}

func TestRegisterEmployeeIsApprovedImmediately(t *testing.T) {
	manager := newTestAuthManager()
	ctx := context.Background()

	profile, resp, err := manager.Register(ctx, domain.RegisterRequest{
		Username: "Clerk01",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if profile.Username != "clerk01" {
		t.Fatalf("expected lowercased username, got %q", profile.Username)
	}
	if profile.Role != domain.RoleEmployee {
		t.Fatalf("expected default employee role, got %q", profile.Role)
	}
	if !profile.IsApproved {
		t.Fatalf("expected employee to be approved immediately")
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected signed token on registration")
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "clerk01", Password: "pass1234"}); err != nil {
		t.Fatalf("login after registration failed: %v", err)
	}
}

func TestRegisterAdminStaysPendingUntilApproved(t *testing.T) {
	manager := newTestAuthManager()
	ctx := context.Background()

	profile, _, err := manager.Register(ctx, domain.RegisterRequest{
		Username: "newadmin",
		Password: "secret99",
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if profile.IsApproved {
		t.Fatalf("expected admin registration to be pending")
	}

	_, err = manager.Login(ctx, domain.LoginRequest{Username: "newadmin", Password: "secret99"})
	if !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved before approval, got %v", err)
	}

	approved, err := manager.SetApproval(ctx, "newadmin", true)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !approved.IsApproved {
		t.Fatalf("expected approval flag to flip")
	}

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "newadmin", Password: "secret99"})
	if err != nil {
		t.Fatalf("login after approval failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role in response, got %q", resp.Role)
	}
}

func TestSetApprovalCanRevokeAccess(t *testing.T) {
	manager := newTestAuthManager()
	ctx := context.Background()

	if _, _, err := manager.Register(ctx, domain.RegisterRequest{Username: "revokee", Password: "pass1234"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "revokee", Password: "pass1234"}); err != nil {
		t.Fatalf("login before revocation failed: %v", err)
	}

	revoked, err := manager.SetApproval(ctx, "revokee", false)
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if revoked.IsApproved {
		t.Fatalf("expected approval flag to be cleared")
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "revokee", Password: "pass1234"}); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved after revocation, got %v", err)
	}
}

func TestRegisterStoresPasswordHash(t *testing.T) {
	repo := memory.New()
	manager := NewAuthManager("unit-test-secret-key-at-least-32-chars", time.Hour, repo, "", "")

	if _, _, err := manager.Register(context.Background(), domain.RegisterRequest{
		Username: "hasher",
		Password: "plain-value",
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	account, err := repo.GetUserByUsername(context.Background(), "hasher")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if account.PasswordHash == "plain-value" {
		t.Fatalf("expected password to be stored hashed")
	}
	if !strings.HasPrefix(account.PasswordHash, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", account.PasswordHash)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	manager := newTestAuthManager()
	ctx := context.Background()

	if _, _, err := manager.Register(ctx, domain.RegisterRequest{Username: "duplicate", Password: "pass1234"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, _, err := manager.Register(ctx, domain.RegisterRequest{Username: "Duplicate", Password: "otherpass"})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	manager := newTestAuthManager()
	ctx := context.Background()

	cases := []domain.RegisterRequest{
		{Username: "abc", Password: "pass1234"},
		{Username: "has space", Password: "pass1234"},
		{Username: "validuser", Password: "short"},
		{Username: "validuser", Password: "pass1234", Role: "superuser"},
	}
	for _, req := range cases {
		if _, _, err := manager.Register(ctx, req); err == nil {
			t.Fatalf("expected register to fail for %+v", req)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	manager := newTestAuthManager()
	ctx := context.Background()

	if _, _, err := manager.Register(ctx, domain.RegisterRequest{Username: "worker", Password: "pass1234"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := manager.Login(ctx, domain.LoginRequest{Username: "worker", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}

	_, err = manager.Login(ctx, domain.LoginRequest{Username: "nobody", Password: "whatever"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestSpecialCredentialPairBypassesApproval(t *testing.T) {
	repo := memory.New()
	manager := NewAuthManager("unit-test-secret-key-at-least-32-chars", time.Hour, repo, "nightshift", "shift-pass-1")

	if _, _, err := manager.Register(context.Background(), domain.RegisterRequest{
		Username: "nightshift",
		Password: "shift-pass-1",
		Role:     domain.RoleAdmin,
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// Pending admin, but the configured pair gets through.
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "nightshift", Password: "shift-pass-1"})
	if err != nil {
		t.Fatalf("special pair login failed: %v", err)
	}
	if resp.IsApproved {
		t.Fatalf("expected response to still report pending approval")
	}

	// A different pending account with the same password stays locked out.
	if _, _, err := manager.Register(context.Background(), domain.RegisterRequest{
		Username: "dayshift",
		Password: "shift-pass-1",
		Role:     domain.RoleAdmin,
	}); err != nil {
		t.Fatalf("second register failed: %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "dayshift", Password: "shift-pass-1"}); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved for non-special pending account, got %v", err)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager := newTestAuthManager()
	ctx := context.Background()

	if _, _, err := manager.Register(ctx, domain.RegisterRequest{Username: "tokenuser", Password: "pass1234"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "tokenuser", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "tokenuser" || actor.Role != domain.RoleEmployee {
		t.Fatalf("unexpected actor from token: %+v", actor)
	}

	if _, err := manager.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}

	other := NewAuthManager("another-secret-key-also-32-chars-long!", time.Hour, memory.New(), "", "")
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}
