package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDirectoryUserEnumeration(t *testing.T) {
	d := NewMemoryDirectory()
	d.AddUser("0xA", time.Now())
	d.AddUser("0xB", time.Now())

	all, err := d.AllUserAddresses(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryDirectoryBotUserAndWatchedLookup(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	_, found, err := d.BotUserID(ctx, "0xBot")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, d.EnsureBotUser(ctx, "0xBot", "bot-1"))
	id, found, err := d.BotUserID(ctx, "0xBot")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "bot-1", id)

	require.NoError(t, d.EnsureCopyLeader(ctx, "0xLeader"))
	kind, found, err := d.Lookup(ctx, "0xLeader")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "copy_leader", string(kind))
}
