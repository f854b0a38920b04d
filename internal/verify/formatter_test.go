package verify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/claimlens/backend/internal/enhance"
	"github.com/claimlens/backend/internal/evidence"
	"github.com/claimlens/backend/internal/llm"
)

func sampleResult() *Result {
	rank := 2
	final := &Verdict{
		Label:      llm.VerdictMixed,
		Confidence: 0.55,
		Rationale:  "sources disagree on the timing",
		Supporting: []CitedEvidence{{
			Item:    evidence.Item{ID: "a", SourceURL: "https://example.com/a", Origin: evidence.OriginInternal, TrustRank: &rank},
			Snippet: "confirmed on Monday",
		}},
		Contradicting: []CitedEvidence{{
			Item:    evidence.Item{ID: "ext_b", SourceURL: "https://example.com/b", Origin: evidence.OriginExternal},
			Snippet: "denied on Tuesday",
		}},
	}

	return &Result{
		ID:    "v-1",
		Claim: "the deal closed this week",
		Enhancement: &enhance.EnhancedQuery{
			Original:  "the deal closed this week",
			Clarified: "the Acme acquisition closed this week",
			Queries:   []string{"Acme acquisition closed", "Acme deal completion"},
		},
		FirstPass:  &Verdict{Label: llm.VerdictUnverified, Confidence: 0.3, Rationale: "thin"},
		SecondPass: final,
		Final:      final,
		Escalated:  true,
		Breakdown:  Breakdown{Internal: 1, External: 1},
		Notes:      []string{"external search used"},
		Duration:   1500 * time.Millisecond,
	}
}

func TestFormat(t *testing.T) {
	record := Format(sampleResult())

	assert.Equal(t, "v-1", record.ID)
	assert.Equal(t, "MIXED", record.Verdict)
	assert.Equal(t, 0.55, record.Confidence)
	assert.Equal(t, "the Acme acquisition closed this week", record.Clarified)
	assert.True(t, record.Escalated)
	assert.True(t, record.TwoPass)
	assert.Equal(t, Breakdown{Internal: 1, External: 1}, record.Breakdown)
	assert.Equal(t, int64(1500), record.DurationMS)

	assert.Len(t, record.Supporting, 1)
	assert.Equal(t, "https://example.com/a", record.Supporting[0].Source)
	assert.Equal(t, "internal", record.Supporting[0].Origin)
	assert.NotNil(t, record.Supporting[0].TrustRank)

	assert.Len(t, record.Contradicting, 1)
	assert.Equal(t, "external", record.Contradicting[0].Origin)
}

func TestFormatOmitsClarifiedWhenUnchanged(t *testing.T) {
	result := sampleResult()
	result.Enhancement.Clarified = result.Claim

	record := Format(result)
	assert.Empty(t, record.Clarified)
}

func TestFormatNeverFabricatesEvidence(t *testing.T) {
	result := sampleResult()
	result.Final.Supporting = nil
	result.Final.Contradicting = nil

	record := Format(result)
	assert.Empty(t, record.Supporting)
	assert.Empty(t, record.Contradicting)
}

func TestRenderText(t *testing.T) {
	out := RenderText(Format(sampleResult()))

	assert.Contains(t, out, "Claim: the deal closed this week")
	assert.Contains(t, out, "Interpreted as: the Acme acquisition closed this week")
	assert.Contains(t, out, "Verdict: MIXED (confidence 55%)")
	assert.Contains(t, out, "1 internal, 1 external")
	assert.Contains(t, out, "web search used")
	assert.Contains(t, out, "+ https://example.com/a")
	assert.Contains(t, out, "- https://example.com/b")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestRenderCompact(t *testing.T) {
	out := RenderCompact(Format(sampleResult()))
	assert.Equal(t, "MIXED [55%] the deal closed this week", out)
}
