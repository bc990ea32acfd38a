package testutil

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// FailCreates makes every INSERT into table fail until the test ends.
func FailCreates(t testing.TB, db *gorm.DB, table string) {
	t.Helper()
	name := "testutil:fail_create_" + table
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register(name, failOn(table)))
	t.Cleanup(func() { _ = db.Callback().Create().Remove(name) })
}

// FailDeletes makes every DELETE from table fail until the test ends.
func FailDeletes(t testing.TB, db *gorm.DB, table string) {
	t.Helper()
	name := "testutil:fail_delete_" + table
	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register(name, failOn(table)))
	t.Cleanup(func() { _ = db.Callback().Delete().Remove(name) })
}

// HoldQueries blocks every SELECT against table until release is closed and
// returns a counter of the SELECTs that reached the hold.
func HoldQueries(t testing.TB, db *gorm.DB, table string, release <-chan struct{}) func() int64 {
	t.Helper()
	var count atomic.Int64
	name := "testutil:hold_query_" + table
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		count.Add(1)
		<-release
	}))
	t.Cleanup(func() { _ = db.Callback().Query().Remove(name) })
	return count.Load
}

func failOn(table string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			_ = tx.AddError(errors.New(table + " unavailable"))
		}
	}
}
