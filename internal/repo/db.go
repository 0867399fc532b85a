// Package repo stores companies, coupons, ingestion runs and idempotency
// keys in SQLite through GORM. Functions take the *gorm.DB to use, so callers
// can pass a transaction.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-rewards-backend/internal/domain"
)

var (
	// ErrNotFound is gorm.ErrRecordNotFound, so errors.Is works with either.
	ErrNotFound = gorm.ErrRecordNotFound
	// ErrDuplicate reports a unique constraint violation, e.g. a coupon code
	// that is already taken.
	ErrDuplicate = errors.New("duplicate")
	// ErrForeignKey reports a row pointing at a missing parent.
	ErrForeignKey = errors.New("foreign key violation")
)

// OpenOption tweaks OpenSQLite.
type OpenOption func(*gorm.Config)

// WithLogger replaces the GORM logger (default: silent).
func WithLogger(l logger.Interface) OpenOption {
	return func(c *gorm.Config) { c.Logger = l }
}

// pragmas are applied through the DSN so every pooled connection gets them,
// not only the first one.
var pragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

const (
	poolSize        = 10
	poolIdleTime    = 5 * time.Minute
	poolMaxLifetime = 30 * time.Minute
)

// OpenSQLite opens the rewards database at path, creating the file if
// needed. path may also be a "file:" DSN. Queries are traced through the
// GORM OpenTelemetry plugin.
func OpenSQLite(path string, opts ...OpenOption) (*gorm.DB, error) {
	// the driver reports a missing directory as "out of memory (14)"
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("database directory: %w", err)
		}
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	for _, o := range opts {
		o(cfg)
	}
	db, err := gorm.Open(sqlite.Open(withPragmas(path)), cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(poolSize)
	sqlDB.SetMaxIdleConns(poolSize)
	sqlDB.SetConnMaxIdleTime(poolIdleTime)
	sqlDB.SetConnMaxLifetime(poolMaxLifetime)
	return db, nil
}

func withPragmas(dsn string) string {
	var b strings.Builder
	b.WriteString(dsn)
	sep := byte('?')
	if strings.Contains(dsn, "?") {
		sep = '&'
	}
	for _, p := range pragmas {
		b.WriteByte(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = '&'
	}
	return b.String()
}

// AutoMigrate creates or updates every table the application uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Company{},
		&domain.Coupon{},
		&domain.IngestionRun{},
		&domain.IngestionRecord{},
		&domain.Idempotency{},
	)
}

// classify turns constraint failures into ErrDuplicate or ErrForeignKey. The
// pure-Go driver reports most of them as plain text, so messages are matched
// as well as sentinel errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(msg, "unique constraint failed"),
		strings.Contains(msg, "constraint failed: unique"):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated),
		strings.Contains(msg, "foreign key constraint failed"):
		return ErrForeignKey
	}
	return err
}
