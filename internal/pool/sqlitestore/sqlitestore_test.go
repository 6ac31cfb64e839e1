package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/programme-lv/disttester/internal/pool"
	"github.com/programme-lv/disttester/internal/pool/pooltest"
	"github.com/programme-lv/disttester/internal/pool/sqlitestore"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	pooltest.Run(t, func(t *testing.T) pool.Store {
		s, err := sqlitestore.Open(context.Background(), filepath.Join(t.TempDir(), "pool.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
