package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/store/sqlite"
)

var testJWT = &JWTConfig{
	Secret:   []byte("test-secret-change-me"),
	Issuer:   "test",
	Audience: "test",
	TTL:      24 * time.Hour,
}

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return NewService(st, testJWT)
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		display  string
		want     error
	}{
		{name: "bad email", email: "not-an-email", password: "password123", display: "Alice", want: ErrInvalidEmail},
		{name: "blank name", email: "a@example.com", password: "password123", display: "   ", want: ErrInvalidName},
		{name: "short password", email: "a@example.com", password: "12345", display: "Alice", want: ErrInvalidPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.Register(ctx, tt.email, tt.password, tt.display, ""); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRegister_NormalizesEmailAndRejectsDuplicate(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	token, user, err := svc.Register(ctx, " Alice@Example.com ", "password123", "Alice", "a.png")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}

	if _, _, err := svc.Register(ctx, "alice@example.com", "password123", "Other", ""); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginAndVerify(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, registered, err := svc.Register(ctx, "bob@example.com", "password123", "Bob", "bob.png")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "bob@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	token, _, err := svc.Login(ctx, "BOB@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	id, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.ID != registered.ID || id.DisplayName != "Bob" || id.AvatarRef != "bob.png" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerify_Rejects(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	expired := *testJWT
	expired.TTL = -time.Minute
	stale, err := GenerateToken(&expired, "u1", "x@example.com", "x")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	otherIssuer := *testJWT
	otherIssuer.Issuer = "someone-else"
	foreign, err := GenerateToken(&otherIssuer, "u1", "x@example.com", "x")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Well-formed token for a user that does not exist.
	orphan, err := GenerateToken(testJWT, "ghost", "ghost@example.com", "ghost")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	for name, token := range map[string]string{
		"garbage": "not.a.token",
		"expired": stale,
		"issuer":  foreign,
		"orphan":  orphan,
	} {
		if _, err := svc.Verify(ctx, token); !errors.Is(err, core.ErrUnauthorized) {
			t.Errorf("%s: expected unauthorized, got %v", name, err)
		}
	}
}
