package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		wantErr string
	}{
		{name: "malformed dsn", dsn: "postgres://%zz", wantErr: "parse postgres dsn"},
		{name: "unreachable server", dsn: "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1", wantErr: "ping postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			_, err := Open(ctx, tt.dsn)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStore_NilGuards(t *testing.T) {
	var store *Store
	ctx := context.Background()

	if err := store.Ping(ctx); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("expected errStoreNotInitialized from Ping, got %v", err)
	}
	err := store.WithinTx(ctx, func(context.Context, domain.Repositories) error { return nil })
	if !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("expected errStoreNotInitialized from WithinTx, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("closing nil store must be a no-op: %v", err)
	}
}

func TestStore_PostgresSessionAndSchema(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	var app string
	if err := store.DB().QueryRowContext(ctx, `SELECT current_setting('application_name')`).Scan(&app); err != nil {
		t.Fatalf("read application_name: %v", err)
	}
	if app == "" {
		t.Fatal("application_name must be set on storefront connections")
	}
}

func TestStore_PostgresWithinTxRollsBack(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, _, err := repos.Customers.GetOrCreateByUser(ctx, 77); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := store.Repos().Customers.GetByUser(ctx, 77); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected customer to be rolled back, got %v", err)
	}
}
