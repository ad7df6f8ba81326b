package migrations

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	up, _, err := src.ReadUp(version)
	require.NoError(t, err)
	defer up.Close()
	upSQL, err := io.ReadAll(up)
	require.NoError(t, err)

	down, _, err := src.ReadDown(version)
	require.NoError(t, err)
	defer down.Close()

	schema := string(upSQL)
	assert.True(t, strings.Contains(schema, "UNIQUE (sender_id, page_id)"))
	assert.Equal(t, 3, strings.Count(schema, "ON DELETE CASCADE"))
	assert.Contains(t, schema, "CHECK (role IN ('user', 'assistant'))")
}
