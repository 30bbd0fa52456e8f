package dbtest

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/migrate"
)

// DSNEnv names the postgres database used by tests that need real concurrency.
const DSNEnv = "STOREFRONT_TEST_DB_DSN"

const postgresPoolSize = 16

// NewPostgres migrates a fresh schema inside the database named by
// STOREFRONT_TEST_DB_DSN and returns a pooled client bound to it. The schema
// is dropped on cleanup. The test is skipped when the variable is unset.
func NewPostgres(t testing.TB) *db.Client {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(DSNEnv))
	if dsn == "" {
		t.Skipf("%s is not set", DSNEnv)
	}
	ctx := context.Background()

	admin := openPostgres(t, dsn)
	schema := "sf_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := admin.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_ = admin.Exec("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Error
		if sqlDB, err := admin.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	scoped, err := withSearchPath(dsn, schema+",public")
	if err != nil {
		t.Fatalf("scope dsn: %v", err)
	}
	conn := openPostgres(t, scoped)
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(postgresPoolSize)
	sqlDB.SetMaxIdleConns(postgresPoolSize)
	sqlDB.SetConnMaxLifetime(time.Minute)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Run(ctx, sqlDB, migrationsDir(), "up"); err != nil {
		t.Fatalf("migrate %s: %v", schema, err)
	}
	return db.NewFromGorm(conn)
}

// Each runs fn against sqlite and, when configured, postgres. Only the
// postgres run has more than one connection, so only it interleaves
// transactions for real.
func Each(t *testing.T, fn func(t *testing.T, client *db.Client)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) { fn(t, NewSQLite(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, NewPostgres(t)) })
}

func openPostgres(t testing.TB, dsn string) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	return conn
}

// withSearchPath adds a search_path runtime parameter to either DSN form.
func withSearchPath(dsn, searchPath string) (string, error) {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		q := u.Query()
		q.Set("search_path", searchPath)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	return fmt.Sprintf("%s search_path=%s", dsn, searchPath), nil
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrate", "migrations")
}
