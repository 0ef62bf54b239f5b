package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

const envIntegrationDSN = "STOREFRONT_POSTGRES_TEST_DSN"

// openPostgresStoreForIntegrationTest возвращает хранилище с применённой схемой и пустыми таблицами.
func openPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	store := openRawPostgresStoreForIntegrationTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	truncateStorefrontTables(ctx, t, store)
	return store
}

// openRawPostgresStoreForIntegrationTest открывает подключение без миграций.
// Тест пропускается, если DSN не задан или база недоступна.
func openRawPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(envIntegrationDSN))
	if dsn == "" {
		t.Skipf("%s is not set", envIntegrationDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	store, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// truncateStorefrontTables очищает все таблицы схемы, кроме журнала миграций.
func truncateStorefrontTables(ctx context.Context, t *testing.T, store *Store) {
	t.Helper()

	rows, err := store.DB().QueryContext(ctx, `
		SELECT quote_ident(tablename)
		FROM pg_tables
		WHERE schemaname = current_schema() AND tablename <> 'schema_migrations'`)
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan table name: %v", err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(tables) == 0 {
		return
	}

	if _, err := store.DB().ExecContext(ctx, `TRUNCATE TABLE `+strings.Join(tables, ", ")+` RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
