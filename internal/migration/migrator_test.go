package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  error
	}{
		{"postgres", DatabaseTypePostgres, nil},
		{"PG", DatabaseTypePostgres, nil},
		{"mariadb", DatabaseTypeMySQL, nil},
		{"sqlite3", "", ErrUseAutoMigrate},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDatabaseType(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := ParseDatabaseType("oracle")
	assert.Error(t, err)
}

func TestAvailable(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL} {
		t.Run(string(dbType), func(t *testing.T) {
			migrations, err := Available(dbType)
			require.NoError(t, err)
			require.NotEmpty(t, migrations)
			assert.Equal(t, uint(1), migrations[0].Version)
			assert.Equal(t, "create_sessions", migrations[0].Name)
			assert.False(t, migrations[0].Applied)
		})
	}

	_, err := Available("oracle")
	assert.Error(t, err)
}

func TestNewMigrator_RequiresURL(t *testing.T) {
	_, err := NewMigrator(Config{DatabaseType: DatabaseTypePostgres})
	assert.Error(t, err)
}
