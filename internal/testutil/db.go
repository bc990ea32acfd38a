// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"recipebox/internal/model"
	"recipebox/internal/repository"
)

// NewDB opens a migrated in-memory SQLite database. A single connection keeps
// every query on the same in-memory schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, username string) *model.User {
	t.Helper()

	user := &model.User{
		Username:     username,
		Name:         username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func CreateRecipe(t testing.TB, db *gorm.DB, accountID uint, title, folder string) *model.Recipe {
	t.Helper()

	if folder == "" {
		folder = model.FolderMain
	}
	recipe := &model.Recipe{AccountID: accountID, Title: title, Folder: folder}
	require.NoError(t, db.Create(recipe).Error)
	return recipe
}
