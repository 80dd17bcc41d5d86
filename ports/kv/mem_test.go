package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Memory(t *testing.T) {
	type snapshot struct {
		NextDue     uint32 `json:"next_due"`
		ActionCount uint64 `json:"action_count"`
	}
	s := NewMemStore()
	key := Key("quant", "prog-1", "state")
	require.Equal(t, "quant.prog-1.state", key)

	_, err := Get[snapshot](t.Context(), s, key)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Put(t.Context(), s, key, snapshot{NextDue: 4, ActionCount: 2}, PutOptions{}))

	loaded, err := Get[snapshot](t.Context(), s, key)
	require.NoError(t, err)
	require.Equal(t, snapshot{NextDue: 4, ActionCount: 2}, loaded)

	require.NoError(t, s.Delete(t.Context(), key))
	_, err = Get[snapshot](t.Context(), s, key)
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_Memory_TTL(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewMemStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(t.Context(), "k", Entry{Data: []byte("1")}, PutOptions{TTL: time.Minute}))
	_, err := s.Get(t.Context(), "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = s.Get(t.Context(), "k")
	require.ErrorIs(t, err, ErrNotFound)
}
