package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimlens/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func sampleRecord(id, userID string) *models.VerificationRecord {
	return &models.VerificationRecord{
		ID:            id,
		UserID:        userID,
		Claim:         "the claim under test",
		Verdict:       "TRUE",
		Confidence:    0.87,
		Rationale:     "well supported",
		Escalated:     true,
		InternalCount: 4,
		ExternalCount: 2,
		DurationMS:    1200,
		CreatedAt:     time.Now(),
		Evidence: []models.EvidenceRef{
			{EvidenceID: "abc", SourceURL: "https://example.com/a", Origin: "internal", Role: "supporting", Snippet: "..."},
			{EvidenceID: "ext_123", SourceURL: "https://example.com/b", Origin: "external", Role: "contradicting"},
		},
	}
}

func TestInsertAndGetVerification(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.InsertVerification(sampleRecord("v1", "u1")))

	got, err := client.GetVerification("v1")
	require.NoError(t, err)

	assert.Equal(t, "TRUE", got.Verdict)
	assert.Equal(t, 0.87, got.Confidence)
	assert.True(t, got.Escalated)
	assert.Equal(t, 4, got.InternalCount)
	assert.Equal(t, 2, got.ExternalCount)
	require.Len(t, got.Evidence, 2)
	assert.Equal(t, "supporting", got.Evidence[0].Role)
}

func TestGetHistoryOrderedAndLimited(t *testing.T) {
	client := newTestClient(t)

	for i, id := range []string{"v1", "v2", "v3"} {
		rec := sampleRecord(id, "u1")
		rec.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, client.InsertVerification(rec))
	}

	records, err := client.GetHistory("u1", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "v3", records[0].ID)
	assert.Equal(t, "v2", records[1].ID)
}

func TestGetHistoryScopedToUser(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.InsertVerification(sampleRecord("v1", "u1")))
	require.NoError(t, client.InsertVerification(sampleRecord("v2", "u2")))

	records, err := client.GetHistory("u1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "v1", records[0].ID)
}
