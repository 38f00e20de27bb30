package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/wealth-tracker/internal/domain"
	"github.com/dvloznov/wealth-tracker/internal/storage/memory"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(memory.NewStore(), []byte("test-secret"), time.Hour)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	user, token, err := s.Register(ctx, "Dana@Example.com", "Dana", "correct-horse")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Email != "dana@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if token == "" {
		t.Error("expected a token on registration")
	}

	got, _, err := s.Login(ctx, "dana@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Login() returned user %s, want %s", got.ID, user.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"missing email", "", "long-enough"},
		{"invalid email", "not-an-email", "long-enough"},
		{"short password", "a@b.com", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := s.Register(ctx, tt.email, "", tt.password); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if _, _, err := s.Register(ctx, "a@b.com", "A", "long-enough"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, _, err := s.Register(ctx, "A@B.com", "A", "long-enough"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestLogin_WrongCredentials(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if _, _, err := s.Register(ctx, "a@b.com", "A", "long-enough"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, _, err := s.Login(ctx, "a@b.com", "wrong-password"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("wrong password: expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := s.Login(ctx, "nobody@b.com", "long-enough"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("unknown email: expected ErrUnauthorized, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := newService(t)
	userID := uuid.New()

	token, err := s.IssueToken(userID)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	got, err := s.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if got != userID {
		t.Errorf("ParseToken() = %s, want %s", got, userID)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	s := newService(t)
	other := NewService(memory.NewStore(), []byte("different-secret"), time.Hour)

	token, err := other.IssueToken(uuid.New())
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := s.ParseToken(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	s := newService(t)
	userID := uuid.New()
	token, err := s.IssueToken(userID)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	var gotUserID uuid.UUID
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if gotUserID != userID {
			t.Errorf("context user id = %s, want %s", gotUserID, userID)
		}
	})

	t.Run("missing token fails closed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("garbage token fails closed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestUserIDFromContext_Empty(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}
