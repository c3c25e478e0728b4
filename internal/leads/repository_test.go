package leads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryUpsertRefreshesContactFieldsOnly(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	pid, sid := "p1", "s2"
	require.NoError(t, repo.Create(ctx, &Lead{
		ID:         "legacy_7",
		Name:       "Old Name",
		Phone:      "971500000007",
		Source:     SourceWhatsApp,
		Status:     StatusQualified,
		AssignedTo: "agent-1",
		PipelineID: &pid,
		StageID:    &sid,
		Provenance: Provenance{CampaignID: "spring-launch"},
	}))

	otherPID, otherSID := "p9", "s9"
	created, err := repo.Upsert(ctx, &Lead{
		ID:         "legacy_7",
		Name:       "New Name",
		Phone:      "971500000008",
		Email:      "new@example.com",
		Budget:     "2M AED",
		Source:     SourceLegacy,
		Status:     StatusNew,
		PipelineID: &otherPID,
		StageID:    &otherSID,
		Provenance: Provenance{MarketingChannel: "legacy"},
	})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := repo.GetByID(ctx, "legacy_7")
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.Name)
	assert.Equal(t, "971500000008", got.Phone)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, "2M AED", got.Budget)

	assert.Equal(t, SourceWhatsApp, got.Source)
	assert.Equal(t, StatusQualified, got.Status)
	assert.Equal(t, "agent-1", got.AssignedTo)
	assert.Equal(t, "spring-launch", got.Provenance.CampaignID)
	assert.Empty(t, got.Provenance.MarketingChannel)
	require.NotNil(t, got.PipelineID)
	assert.Equal(t, "p1", *got.PipelineID)
	assert.Equal(t, "s2", *got.StageID)
}

func TestInMemoryUpsertAssignsPipelineWhenUnplaced(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &Lead{ID: "legacy_8", Name: "A", Phone: "971500000009"}))

	pid, sid := "p1", "s1"
	_, err := repo.Upsert(ctx, &Lead{ID: "legacy_8", Name: "A", Phone: "971500000009", PipelineID: &pid, StageID: &sid})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, "legacy_8")
	require.NoError(t, err)
	require.NotNil(t, got.PipelineID)
	assert.Equal(t, "p1", *got.PipelineID)
	assert.Equal(t, "s1", *got.StageID)
}
