// Package dbtest opens throwaway sqlite or postgres databases carrying the full schema.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/migrate"
)

// NewSQLite returns a client over a private in-memory database. The pool is
// capped at one connection, so concurrent transactions run one at a time.
// Use NewPostgres or Each for tests that need real interleaving.
func NewSQLite(t testing.TB) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.ApplySQLiteSchema(context.Background(), conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db.NewFromGorm(conn)
}

// SeedUser inserts a customer (or admin) identity.
func SeedUser(t testing.TB, conn *gorm.DB, email string, role enums.UserRole) models.User {
	t.Helper()
	user := models.User{Email: email, Role: role, AuthProvider: enums.AuthProviderLocal}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedProduct inserts a product with the given price and stock.
func SeedProduct(t testing.TB, conn *gorm.DB, name string, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// Stock reads the current stock of a product.
func Stock(t testing.TB, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := conn.Select("stock").Where("id = ?", productID).Take(&product).Error; err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return product.Stock
}
