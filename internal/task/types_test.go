package task

import (
	"testing"

	"github.com/phrazzld/taskrelay/internal/callback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHierarchy(t *testing.T) *TypeRegistry {
	t.Helper()
	types := NewTypeRegistry()
	require.NoError(t, types.Register(TypeInfo{Name: "media", Traverse: true}))
	require.NoError(t, types.Register(TypeInfo{Name: "video", Parent: "media", New: func() Task { return NewMockTask() }}))
	require.NoError(t, types.Register(TypeInfo{Name: "clip", Parent: "video", New: func() Task { return NewMockTask() }}))
	require.NoError(t, types.Register(TypeInfo{Name: "plain", New: func() Task { return NewMockTask() }}))
	return types
}

func TestTypeRegistry_Register(t *testing.T) {
	types := newHierarchy(t)

	assert.Error(t, types.Register(TypeInfo{}))
	assert.Error(t, types.Register(TypeInfo{Name: "video"}), "duplicate")
	assert.Error(t, types.Register(TypeInfo{Name: "orphan", Parent: "missing"}))
	assert.Panics(t, func() { types.MustRegister(TypeInfo{Name: "plain"}) })

	assert.Equal(t, []string{"clip", "media", "plain", "video"}, types.Names())

	info, ok := types.Lookup("clip")
	require.True(t, ok)
	assert.Equal(t, "video", info.Parent)
}

func TestTypeRegistry_Runnable(t *testing.T) {
	types := newHierarchy(t)

	_, err := types.Runnable("video")
	assert.NoError(t, err)

	_, err = types.Runnable("media")
	assert.ErrorIs(t, err, ErrUnknownTaskType)
	assert.Contains(t, err.Error(), "abstract")

	_, err = types.Runnable("missing")
	assert.ErrorIs(t, err, ErrUnknownTaskType)
}

func TestTypeRegistry_Hierarchy(t *testing.T) {
	types := newHierarchy(t)
	var _ callback.Hierarchy = types

	assert.True(t, types.Assignable("clip", "clip"))
	assert.True(t, types.Assignable("clip", "video"))
	assert.True(t, types.Assignable("clip", "media"))
	assert.False(t, types.Assignable("media", "clip"))
	assert.False(t, types.Assignable("plain", "media"))
	assert.False(t, types.Assignable("unknown", "media"))

	assert.True(t, types.Traverse("media"))
	assert.True(t, types.Traverse("clip"), "traverse is inherited")
	assert.False(t, types.Traverse("plain"))
}
