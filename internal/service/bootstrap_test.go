package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
)

func TestEnsureSystemAdminCreatesOnce(t *testing.T) {
	users := newFakeUserRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	if err := EnsureSystemAdmin(ctx, users, logger, "admin@crm.local", "seed-password-1", "System Administrator"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	admin, err := users.FindByEmail("admin@crm.local")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !admin.IsSystem || admin.Role != domain.RoleAdmin || !admin.EmailVerified {
		t.Fatalf("unexpected admin %+v", admin)
	}

	// Idempotent on rerun.
	if err := EnsureSystemAdmin(ctx, users, logger, "admin@crm.local", "seed-password-1", "System Administrator"); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	all, _ := users.List()
	if len(all) != 1 {
		t.Fatalf("expected 1 account, got %d", len(all))
	}
}

func TestEnsureSystemAdminRefusesHijackedEmail(t *testing.T) {
	users := newFakeUserRepo()
	ctx := context.Background()

	regular := &domain.User{Email: "admin@crm.local", PasswordHash: "h", DisplayName: "Impostor", Role: domain.RoleUser}
	if err := users.Create(regular); err != nil {
		t.Fatalf("seed regular: %v", err)
	}

	if err := EnsureSystemAdmin(ctx, users, nil, "admin@crm.local", "", "System Administrator"); err == nil {
		t.Fatal("expected refusal when the email belongs to a non-system account")
	}
}

func TestEnsureSystemAdminGeneratesPasswordWhenEmpty(t *testing.T) {
	users := newFakeUserRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := EnsureSystemAdmin(context.Background(), users, logger, "admin@crm.local", "", "System Administrator"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	admin, err := users.FindByEmail("admin@crm.local")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if admin.PasswordHash == "" {
		t.Fatal("generated password must be hashed and stored")
	}
}
