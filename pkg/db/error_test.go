package db

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestTranslateDuplicate(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:dupkey?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.Exec(`CREATE TABLE serials (number TEXT NOT NULL UNIQUE)`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO serials (number) VALUES ('C20240101001')`).Error)

	err = conn.Exec(`INSERT INTO serials (number) VALUES ('C20240101001')`).Error
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyErr(err))

	translated := TranslateDuplicate(err)
	assert.ErrorIs(t, translated, ErrDuplicateKey)
	assert.Same(t, translated, TranslateDuplicate(translated))

	other := errors.New("connection reset")
	assert.Same(t, other, TranslateDuplicate(other))
	assert.NoError(t, TranslateDuplicate(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
}
