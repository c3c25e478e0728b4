package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(sqlmock.AnyArg(), EventMessageSent, "agent-1", nil, "instagram", []byte(`{}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.LogEvent(context.Background(), Event{
		EventType: EventMessageSent,
		ActorID:   "agent-1",
		Channel:   "instagram",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_LogSubmission(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(sqlmock.AnyArg(), EventLeadSubmitted, nil, "lead-1", "form",
			[]byte(`{"is_new":true,"page_slug":"marina-towers","campaign_id":"cmp_9"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewService(db).LogSubmission(context.Background(), "lead-1", "form", SubmissionDetails{
		IsNew:      true,
		PageSlug:   "marina-towers",
		CampaignID: "cmp_9",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_LogEventError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_events").WillReturnError(errors.New("connection reset"))

	err = NewService(db).LogCallFailed(context.Background(), "agent-1", "lead-1", "provider rejected")
	assert.Error(t, err)
}

func TestService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "event_type", "actor_id", "lead_id", "channel", "details", "created_at"}).
		AddRow("evt-1", "lead.submitted", nil, "lead-1", "whatsapp", []byte(`{"is_new":false}`), now).
		AddRow("evt-2", "call.failed", "agent-1", "lead-1", nil, []byte(`{}`), now.Add(-time.Minute))

	mock.ExpectQuery("SELECT (.+) FROM audit_events").
		WithArgs("lead-1").
		WillReturnRows(rows)

	events, err := NewService(db).QueryEvents(context.Background(), Filter{LeadID: "lead-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventLeadSubmitted, events[0].EventType)
	assert.Equal(t, "whatsapp", events[0].Channel)
	assert.Equal(t, "", events[0].ActorID)
	assert.Equal(t, "agent-1", events[1].ActorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
