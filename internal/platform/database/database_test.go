package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		url    string
		driver string
	}{
		{"sqlite:///./dev.db", "sqlite"},
		{"sqlite://:memory:", "sqlite"},
		{"postgres://u:p@localhost:5432/phyrisk", "postgres"},
		{"postgresql://u:p@localhost/phyrisk", "postgres"},
		{"mysql://root:@tcp(127.0.0.1:3306)/phyrisk?parseTime=true", "mysql"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			d, err := Dialector(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.driver, d.Name())
		})
	}

	_, err := Dialector("oracle://nope")
	assert.Error(t, err)
}

func TestSQLitePath(t *testing.T) {
	assert.Equal(t, "./dev.db", sqlitePath("sqlite:///./dev.db"))
	assert.Equal(t, "/var/lib/app.db", sqlitePath("sqlite:////var/lib/app.db"))
	assert.Equal(t, ":memory:", sqlitePath("sqlite://:memory:"))
	assert.Equal(t, ":memory:", sqlitePath("sqlite://"))
}

func TestNewInMemory(t *testing.T) {
	db, err := New(context.Background(), "sqlite://:memory:", nil)
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestNewRoutesGormLogsToZap(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	db, err := New(context.Background(), "sqlite://:memory:", zap.New(core))
	require.NoError(t, err)

	err = db.Exec("SELECT * FROM missing_table").Error
	require.Error(t, err)

	failed := logs.FilterMessage("sql failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "gorm", failed[0].LoggerName)
	assert.Contains(t, failed[0].ContextMap()["sql"], "missing_table")
}

func TestNewTranslatesDuplicateKey(t *testing.T) {
	db, err := New(context.Background(), "sqlite://:memory:", zap.NewNop())
	require.NoError(t, err)

	type account struct {
		ID    uint
		Email string `gorm:"uniqueIndex"`
	}
	require.NoError(t, db.AutoMigrate(&account{}))
	require.NoError(t, db.Create(&account{Email: "a@x.io"}).Error)

	err = db.Create(&account{Email: "a@x.io"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
