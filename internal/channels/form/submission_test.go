package form

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/estate-crm/internal/channels"
)

func TestParseSubmission_Aliases(t *testing.T) {
	sub, err := ParseSubmission([]byte(`{
		"Name": "Ali Hassan",
		"Mobile": "+971-50-000-0001",
		"Email": "Ali@Example.com",
		"Budget": 1500000,
		"utm_source": "facebook",
		"campaign_id": "cmp_9",
		"page_slug": "marina-towers"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Ali Hassan", sub.Name)
	assert.Equal(t, "+971-50-000-0001", sub.Phone)
	assert.Equal(t, "ali@example.com", sub.Email)
	assert.Equal(t, "1500000", sub.Budget)
	assert.Equal(t, "facebook", sub.UTMSource)
	assert.Equal(t, "cmp_9", sub.CampaignID)
	assert.Equal(t, "marina-towers", sub.PageSlug)
}

func TestParseSubmission_PriorityOrder(t *testing.T) {
	sub, err := ParseSubmission([]byte(`{"name":"A","Phone":"222","phone":"111","Mobile":"333"}`))
	require.NoError(t, err)
	assert.Equal(t, "111", sub.Phone, "lowercase phone outranks other aliases")

	sub, err = ParseSubmission([]byte(`{"name":"A","phone":"  ","Phone":"222"}`))
	require.NoError(t, err)
	assert.Equal(t, "222", sub.Phone, "blank values fall through to the next alias")
}

func TestParseSubmission_NumericPhone(t *testing.T) {
	sub, err := ParseSubmission([]byte(`{"name":"A","phone":971500000001}`))
	require.NoError(t, err)
	assert.Equal(t, "971500000001", sub.Phone)
}

func TestParseSubmission_Errors(t *testing.T) {
	_, err := ParseSubmission([]byte(`{"phone":"1"}`))
	assert.ErrorIs(t, err, ErrMissingName)

	_, err = ParseSubmission([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = ParseSubmission([]byte(`null`))
	assert.Error(t, err)
}

func TestNormalizer(t *testing.T) {
	n := NewNormalizer(nil)
	events := n.ExtractEvents([]byte(`{"name":"Sara","email":"sara@example.com","message":"Call me","submission_id":"row-7"}`))
	require.Len(t, events, 1)
	assert.Equal(t, channels.ChannelForm, events[0].Channel)
	assert.Equal(t, "row-7", events[0].ExternalID)
	assert.Equal(t, "sara@example.com", events[0].SenderID)
	assert.Equal(t, "Sara", events[0].SenderName)

	var sub Submission
	require.NoError(t, json.Unmarshal(events[0].Raw, &sub))
	assert.Equal(t, "Call me", sub.Message)

	assert.Empty(t, n.ExtractEvents([]byte(`{"email":"x@y.z"}`)))

	again := n.ExtractEvents([]byte(`{"name":"Sara","email":"sara@example.com"}`))
	twice := n.ExtractEvents([]byte(`{"name":"Sara","email":"sara@example.com"}`))
	assert.Equal(t, again[0].ExternalID, twice[0].ExternalID)
}
