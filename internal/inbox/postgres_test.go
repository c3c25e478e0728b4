package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/estate-crm/internal/channels"
)

var messageColumnNames = []string{"id", "channel", "external_id", "account_id", "sender_id", "recipient_id",
	"body", "direction", "lead_id", "campaign_id", "sent_at", "created_at"}

func TestPostgresMessageUpsertInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresMessageStoreWithQuerier(mock)

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)INSERT INTO messages.*ON CONFLICT \(channel, external_id\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "whatsapp", "wamid.1", "acc-wa", "971500000001", "wa-pnid-1",
			"hello", "incoming", "", "", baseTime).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	msg := &Message{Channel: channels.ChannelWhatsApp, ExternalID: "wamid.1", AccountID: "acc-wa",
		SenderID: "971500000001", RecipientID: "wa-pnid-1", Body: "hello", Direction: DirectionIncoming, Timestamp: baseTime}
	created, err := store.Upsert(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, msg.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMessageUpsertReplayReturnsExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresMessageStoreWithQuerier(mock)

	mock.ExpectQuery(`(?s)INSERT INTO messages`).
		WithArgs(pgxmock.AnyArg(), "whatsapp", "wamid.1", "", "", "", "", "incoming", "", "", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`(?s)SELECT .* FROM messages WHERE channel = \$1 AND external_id = \$2`).
		WithArgs("whatsapp", "wamid.1").
		WillReturnRows(pgxmock.NewRows(messageColumnNames).
			AddRow("msg-1", "whatsapp", "wamid.1", "acc-wa", "971500000001", "wa-pnid-1", "hello", "incoming", "lead-1", "", baseTime, baseTime))

	msg := &Message{Channel: channels.ChannelWhatsApp, ExternalID: "wamid.1", Direction: DirectionIncoming}
	created, err := store.Upsert(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "lead-1", msg.LeadID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecentFiltersByIdentifiers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresMessageStoreWithQuerier(mock)

	ids := []string{"acc-ig", "ig-page-1"}
	mock.ExpectQuery(`(?s)FROM messages.*ANY\(\$2\).*ORDER BY sent_at DESC, id DESC.*LIMIT \$3`).
		WithArgs("instagram", ids, RecentLimit).
		WillReturnRows(pgxmock.NewRows(messageColumnNames).
			AddRow("m2", "instagram", "mid.2", "acc-ig", "u", "ig-page-1", "b", "incoming", "", "", baseTime.Add(time.Minute), baseTime).
			AddRow("m1", "instagram", "mid.1", "acc-ig", "u", "ig-page-1", "a", "incoming", "", "", baseTime, baseTime))

	out, err := store.Recent(context.Background(), channels.ChannelInstagram, ids, RecentLimit)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "m2", out[0].ID)

	none, err := store.Recent(context.Background(), channels.ChannelInstagram, nil, RecentLimit)
	require.NoError(t, err)
	assert.Empty(t, none)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountUpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresAccountStoreWithQuerier(mock)

	mock.ExpectExec(`UPDATE accounts SET status = \$2`).
		WithArgs("acc-1", "error", "token expired", baseTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE accounts SET status = \$2`).
		WithArgs("ghost", "connected", "", baseTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.UpdateStatus(context.Background(), "acc-1", AccountError, "token expired", baseTime))
	assert.ErrorIs(t, store.UpdateStatus(context.Background(), "ghost", AccountConnected, "", baseTime), ErrAccountNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountByExternalIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresAccountStoreWithQuerier(mock)

	mock.ExpectQuery(`FROM accounts WHERE channel = \$1 AND external_id = \$2`).
		WithArgs("instagram", "nope").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.ByExternalID(context.Background(), channels.ChannelInstagram, "nope")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
