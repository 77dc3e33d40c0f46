package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

type shelfItem struct {
	ID   int
	Code string `gorm:"uniqueIndex:idx_shelf_items_code"`
}

var dbSeq atomic.Int64

func openTestDB(t *testing.T, gl ...*queryLogger) *gorm.DB {
	t.Helper()
	cfg := &gorm.Config{SkipDefaultTransaction: true, Logger: newQueryLogger(nil, 0, false)}
	if len(gl) > 0 {
		cfg.Logger = gl[0]
	}
	dsn := fmt.Sprintf("file:dbclient_%d?mode=memory&cache=shared", dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&shelfItem{}))
	return conn
}

func countItems(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&shelfItem{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOrRollsBack(t *testing.T) {
	conn := openTestDB(t)
	client := NewFromGorm(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&shelfItem{Code: "BERAS-5KG"}).Error
	}))
	assert.EqualValues(t, 1, countItems(t, conn))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&shelfItem{Code: "GULA-1KG"}).Error; err != nil {
			return err
		}
		return errors.New("stock check failed")
	})
	require.EqualError(t, err, "stock check failed")
	assert.EqualValues(t, 1, countItems(t, conn))

	assert.Panics(t, func() {
		_ = client.WithTx(ctx, func(tx *gorm.DB) error {
			tx.Create(&shelfItem{Code: "MINYAK-2L"})
			panic("boom")
		})
	})
	assert.EqualValues(t, 1, countItems(t, conn))
}

func TestPingAndDialect(t *testing.T) {
	client := NewFromGorm(openTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
	assert.True(t, client.IsSQLite())
	require.NoError(t, client.Close())
	assert.Error(t, client.Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, conn.Create(&shelfItem{Code: "SKU-1"}).Error)
	dupErr := conn.Create(&shelfItem{Code: "SKU-1"}).Error
	require.Error(t, dupErr)

	assert.True(t, IsUniqueViolation(dupErr, ""))
	assert.True(t, IsUniqueViolation(dupErr, "shelf_items.code"))
	assert.False(t, IsUniqueViolation(errors.New("timeout"), ""))
	assert.True(t, IsUniqueViolation(
		errors.New(`ERROR: duplicate key value violates unique constraint "idx_products_item_code"`),
		"idx_products_item_code",
	))
}

func TestIsNotFound(t *testing.T) {
	conn := openTestDB(t)
	var out shelfItem
	assert.True(t, IsNotFound(conn.Where("code = ?", "missing").First(&out).Error))
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestQueryLoggerReportsFailuresNotMisses(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: zerolog.DebugLevel, Format: "json", Output: &buf})
	conn := openTestDB(t, &queryLogger{logg: logg, slow: time.Hour})

	var out shelfItem
	_ = conn.Where("code = ?", "missing").First(&out).Error
	require.Empty(t, decodeLines(t, &buf), "record not found is not logged")

	_ = conn.Exec("SELECT * FROM no_such_table").Error
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "query failed", lines[0]["message"])
	assert.Contains(t, lines[0]["sql"], "no_such_table")
}

func TestQueryLoggerFlagsSlowStatements(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: zerolog.DebugLevel, Format: "json", Output: &buf})
	ql := &queryLogger{logg: logg, slow: time.Millisecond}

	ql.Trace(context.Background(), time.Now().Add(-50*time.Millisecond), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)
	ql.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 2", 1
	}, nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "slow query", lines[0]["message"])
	assert.Equal(t, "SELECT 1", lines[0]["sql"])
	assert.EqualValues(t, 1, lines[0]["rows"])
}
