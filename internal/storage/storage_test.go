package storage

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepilot-ai/pricepilot/pkg/types"
)

func newMemStorage() *Storage {
	return NewWithFs(afero.NewMemMapFs(), "/data")
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newMemStorage()

	msg := types.NewAssistantMessage("The price is $24.50", []string{"optimize_price"}, nil)
	require.NoError(t, s.Put([]string{"transcript", "conv1", msg.ID}, msg))

	var out types.Message
	require.NoError(t, s.Get([]string{"transcript", "conv1", msg.ID}, &out))
	assert.Equal(t, msg.Content, out.Content)
	assert.Equal(t, msg.ToolsUsed, out.ToolsUsed)
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := newMemStorage()

	var out types.Message
	err := s.Get([]string{"transcript", "nope"}, &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListReturnsSortedStems(t *testing.T) {
	s := newMemStorage()

	require.NoError(t, s.Put([]string{"transcript", "conv1", "b"}, map[string]int{"n": 2}))
	require.NoError(t, s.Put([]string{"transcript", "conv1", "a"}, map[string]int{"n": 1}))

	items, err := s.List([]string{"transcript", "conv1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)

	convs, err := s.List([]string{"transcript"})
	require.NoError(t, err)
	assert.Equal(t, []string{"conv1"}, convs)
}

func TestListMissingDirIsEmpty(t *testing.T) {
	s := newMemStorage()

	items, err := s.List([]string{"nowhere"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newMemStorage()

	require.NoError(t, s.Put([]string{"x"}, 1))
	require.NoError(t, s.Delete([]string{"x"}))
	require.NoError(t, s.Delete([]string{"x"}))

	var out int
	assert.ErrorIs(t, s.Get([]string{"x"}, &out), ErrNotFound)
}

func TestPutLeavesNoTempFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewWithFs(fs, "/data")

	require.NoError(t, s.Put([]string{"k"}, "v"))

	exists, err := afero.Exists(fs, "/data/k.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}
