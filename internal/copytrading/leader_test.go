package copytrading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBotUsers struct{ byAddress map[string]string }

func (f *fakeBotUsers) BotUserID(ctx context.Context, address string) (string, bool, error) {
	id, ok := f.byAddress[address]
	return id, ok, nil
}

type fakeWatchedAddresses struct {
	kinds   map[string]WatchedAddressKind
	created []string
	ensuredBotUsers []string
}

func (f *fakeWatchedAddresses) Lookup(ctx context.Context, address string) (WatchedAddressKind, bool, error) {
	kind, ok := f.kinds[address]
	return kind, ok, nil
}

func (f *fakeWatchedAddresses) EnsureBotUser(ctx context.Context, address, botUserID string) error {
	f.ensuredBotUsers = append(f.ensuredBotUsers, address)
	return nil
}

func (f *fakeWatchedAddresses) EnsureCopyLeader(ctx context.Context, address string) error {
	f.created = append(f.created, address)
	if f.kinds == nil {
		f.kinds = make(map[string]WatchedAddressKind)
	}
	f.kinds[address] = WatchedCopyLeader
	return nil
}

func TestLeaderResolverBotUserTier(t *testing.T) {
	bots := &fakeBotUsers{byAddress: map[string]string{"0xBot": "user-1"}}
	watched := &fakeWatchedAddresses{}
	r := NewLeaderResolver(bots, watched)

	kind, err := r.Resolve(context.Background(), "0xBot")
	require.NoError(t, err)
	assert.Equal(t, LeaderBotUser, kind)
	assert.Contains(t, watched.ensuredBotUsers, "0xBot")
}

func TestLeaderResolverSmartTraderTier(t *testing.T) {
	bots := &fakeBotUsers{}
	watched := &fakeWatchedAddresses{kinds: map[string]WatchedAddressKind{"0xSmart": WatchedSmartTrader}}
	r := NewLeaderResolver(bots, watched)

	kind, err := r.Resolve(context.Background(), "0xSmart")
	require.NoError(t, err)
	assert.Equal(t, LeaderSmartTrader, kind)
}

func TestLeaderResolverFallsBackToNewCopyLeader(t *testing.T) {
	bots := &fakeBotUsers{}
	watched := &fakeWatchedAddresses{}
	r := NewLeaderResolver(bots, watched)

	kind, err := r.Resolve(context.Background(), "0xUnknown")
	require.NoError(t, err)
	assert.Equal(t, LeaderCopyLeader, kind)
	assert.Contains(t, watched.created, "0xUnknown")
}
