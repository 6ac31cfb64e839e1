package memstore_test

import (
	"testing"

	"github.com/programme-lv/disttester/internal/pool"
	"github.com/programme-lv/disttester/internal/pool/memstore"
	"github.com/programme-lv/disttester/internal/pool/pooltest"
)

func TestStore(t *testing.T) {
	pooltest.Run(t, func(t *testing.T) pool.Store {
		return memstore.New()
	})
}
