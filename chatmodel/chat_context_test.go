package chatmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatContext_Basics(t *testing.T) {
	t.Parallel()
	c := NewChatContext("cid", 123)
	require.NotNil(t, c)
	assert.Equal(t, "cid", c.GetChatID())
	assert.Equal(t, 123, c.AppData())
	assert.NotEmpty(t, c.RunID())

	val, ok := c.GetMetadata("not-found")
	assert.Nil(t, val)
	assert.False(t, ok)
	c.SetMetadata("foo", 1)
	v, ok := c.GetMetadata("foo")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestNewChatContext_DefaultIDs(t *testing.T) {
	t.Parallel()
	c := NewChatContext("", nil)
	require.NotNil(t, c)
	assert.NotEmpty(t, c.GetChatID())
	assert.NotEqual(t, c.GetChatID(), c.RunID())
}

func TestContextPlumbing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Nil(t, GetChatContext(ctx))
	assert.Empty(t, GetChatID(ctx))
	_, err := GetRunID(ctx)
	assert.ErrorIs(t, err, ErrInvalidChatContext)

	c := NewChatContext("x", nil)
	ctx = WithChatContext(ctx, c)
	assert.Equal(t, c, GetChatContext(ctx))
	assert.Equal(t, "x", GetChatID(ctx))
	runID, err := GetRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.RunID(), runID)
}

func TestNewChatID_Unique(t *testing.T) {
	id1 := NewChatID()
	id2 := NewChatID()
	assert.NotEqual(t, id1, id2)
}

type customChatContext struct {
	ChatContext
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	parent := NewChatContext("cid", "tenant-1")
	parent.SetMetadata("user", "alice")

	run := NextRun(parent)
	assert.Equal(t, "cid", run.GetChatID())
	assert.Equal(t, "tenant-1", run.AppData())
	assert.NotEqual(t, parent.RunID(), run.RunID())

	v, ok := run.GetMetadata("user")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	// metadata is shared across the runs of the chat
	run.SetMetadata(MetadataStep, 2)
	v, ok = parent.GetMetadata(MetadataStep)
	require.True(t, ok)
	assert.Equal(t, 2, v)

	custom := NextRun(customChatContext{ChatContext: parent})
	assert.Equal(t, "cid", custom.GetChatID())
	assert.Equal(t, "tenant-1", custom.AppData())
	_, ok = custom.GetMetadata("user")
	assert.False(t, ok)
}
