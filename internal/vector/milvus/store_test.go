package milvus

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/claimlens/backend/internal/evidence"
)

func TestSimilarityFromDistance(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		want     float64
	}{
		{"identical vectors", 0.0, 1.0},
		{"half distance", 1.0, 0.5},
		{"max meaningful distance", 2.0, 0.0},
		{"beyond range clamps to zero", 3.5, 0.0},
		{"negative distance clamps to one", -0.5, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, similarityFromDistance(tt.distance), 1e-9)
		})
	}
}

func TestTruncateForStorage(t *testing.T) {
	assert.Equal(t, "abc", truncateForStorage("abc", 10))
	assert.Equal(t, "ab", truncateForStorage("abcdef", 2))
}

func TestTruncateForStorageKeepsRunesIntact(t *testing.T) {
	// "héllo" is 6 bytes; cutting at 2 would split the é.
	got := truncateForStorage("héllo", 2)
	assert.Equal(t, "h", got)
	assert.True(t, utf8.ValidString(got))

	got = truncateForStorage("日本語", 4)
	assert.Equal(t, "日", got)
	assert.True(t, utf8.ValidString(got))
}

func TestItemIDDefaultsToContentHash(t *testing.T) {
	withID := evidence.Item{ID: "ext_abc", Text: "some text"}
	assert.Equal(t, "ext_abc", itemID(withID))

	withoutID := evidence.Item{Text: "some text"}
	assert.Equal(t, evidence.TextID("some text"), itemID(withoutID))
	assert.Equal(t, itemID(withoutID), itemID(evidence.Item{Text: "some text"}))
}
