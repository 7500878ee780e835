package database_test

import (
	"testing"

	"meatshop/internal/database"
	"meatshop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteMigrates(t *testing.T) {
	db, err := database.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	defer database.Close(db)

	for _, m := range []any{&models.User{}, &models.Product{}, &models.Order{}, &models.OrderItem{}, &models.Notification{}} {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := database.Open("oracle", "x")
	assert.ErrorContains(t, err, "unsupported")
}
