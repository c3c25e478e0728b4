package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/estate-crm/internal/channels"
	"github.com/wolfman30/estate-crm/internal/inbox"
)

type checkerFunc func(inbox.Account) error

func (f checkerFunc) CheckAccount(ctx context.Context, a inbox.Account) error { return f(a) }

type failingAccounts struct{ inbox.AccountStore }

func (failingAccounts) All(ctx context.Context) ([]inbox.Account, error) {
	return nil, errors.New("db down")
}

func seededAccounts() *inbox.MemoryAccountStore {
	return inbox.NewMemoryAccountStore(
		inbox.Account{ID: "acc-ig", Channel: channels.ChannelInstagram, ExternalID: "ig-1", Status: inbox.AccountConnected},
		inbox.Account{ID: "acc-wa", Channel: channels.ChannelWhatsApp, ExternalID: "wa-1", Status: inbox.AccountError, LastError: "old"},
		inbox.Account{ID: "acc-off", Channel: channels.ChannelWhatsApp, ExternalID: "wa-2", Status: inbox.AccountDisconnected},
	)
}

func statusOf(t *testing.T, store *inbox.MemoryAccountStore, externalID string) inbox.Account {
	t.Helper()
	all, err := store.All(context.Background())
	require.NoError(t, err)
	for _, a := range all {
		if a.ExternalID == externalID {
			return a
		}
	}
	t.Fatalf("account %s not found", externalID)
	return inbox.Account{}
}

func TestCheckAllUpdatesStatuses(t *testing.T) {
	store := seededAccounts()
	var checked []string
	poller := NewPoller(store, checkerFunc(func(a inbox.Account) error {
		checked = append(checked, a.ID)
		if a.Channel == channels.ChannelInstagram {
			return errors.New("token expired")
		}
		return nil
	}), nil)

	poller.checkAll(context.Background())

	assert.ElementsMatch(t, []string{"acc-ig", "acc-wa"}, checked, "disconnected accounts are skipped")
	ig := statusOf(t, store, "ig-1")
	assert.Equal(t, inbox.AccountError, ig.Status)
	assert.Equal(t, "token expired", ig.LastError)
	require.NotNil(t, ig.LastCheckedAt)

	wa := statusOf(t, store, "wa-1")
	assert.Equal(t, inbox.AccountConnected, wa.Status)
	assert.Empty(t, wa.LastError)
}

func TestCheckAllFetchError(t *testing.T) {
	called := false
	poller := NewPoller(failingAccounts{}, checkerFunc(func(inbox.Account) error {
		called = true
		return nil
	}), nil)
	poller.checkAll(context.Background())
	assert.False(t, called)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := seededAccounts()
	poller := NewPoller(store, checkerFunc(func(inbox.Account) error { return nil }), nil).
		WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Equal(t, inbox.AccountConnected, statusOf(t, store, "wa-1").Status)
}
