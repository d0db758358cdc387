package badger

import (
	"testing"

	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/storage/storetest"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Store {
		s, err := OpenInMemory()
		require.NoError(t, err)
		return s
	})
}

func TestStore_OnDisk(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	s, err := Open(dir)
	r.NoError(err)
	r.NoError(s.Close())

	s, err = Open(dir)
	r.NoError(err)
	r.NoError(s.Close())
}

func TestKeys_SortNumerically(t *testing.T) {
	r := require.New(t)
	r.Less(string(idKey("room", 9)), string(idKey("room", 10)))
	r.Less(string(messagePrefix(2)), string(messagePrefix(10)))
}
