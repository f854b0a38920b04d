package enhance

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimlens/backend/internal/llm"
)

type stubReasoner struct {
	responses []*llm.Enhancement
	errs      []error
	calls     int
	prompts   []string
}

func (s *stubReasoner) EnhanceQuery(_ context.Context, claim string) (*llm.Enhancement, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, claim)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var resp *llm.Enhancement
	if i < len(s.responses) {
		resp = s.responses[i]
	}
	return resp, err
}

type stubClarifier struct {
	answer string
	err    error
	asked  *Clarification
}

func (s *stubClarifier) Clarify(_ context.Context, c Clarification) (string, error) {
	s.asked = &c
	return s.answer, s.err
}

func TestEnhanceHappyPath(t *testing.T) {
	reasoner := &stubReasoner{responses: []*llm.Enhancement{{
		ClarifiedClaim: "Apple Inc. acquired startup X in 2024",
		Queries:        []string{"Apple acquisition startup X 2024", "Apple buys startup X"},
		Entities:       llm.Entities{Organizations: []string{"Apple Inc."}},
	}}}

	eq, err := NewEnhancer(reasoner).Enhance(context.Background(), "Apple bought them last year", nil)
	require.NoError(t, err)

	assert.Equal(t, "Apple bought them last year", eq.Original)
	assert.Equal(t, "Apple Inc. acquired startup X in 2024", eq.Clarified)
	assert.Len(t, eq.Queries, 2)
	assert.False(t, eq.PassThrough)
	assert.False(t, eq.AmbiguityDetected)
}

func TestEnhanceParseFailureDegradesToPassThrough(t *testing.T) {
	reasoner := &stubReasoner{errs: []error{fmt.Errorf("%w: bad json", llm.ErrEnhanceParse)}}

	eq, err := NewEnhancer(reasoner).Enhance(context.Background(), "the moon landing happened in 1969", nil)
	require.NoError(t, err)

	assert.True(t, eq.PassThrough)
	assert.Equal(t, []string{"the moon landing happened in 1969"}, eq.Queries)
	assert.Equal(t, eq.Original, eq.Clarified)
}

func TestEnhanceUnavailableSurfacesError(t *testing.T) {
	reasoner := &stubReasoner{errs: []error{llm.ErrReasoningUnavailable}}

	_, err := NewEnhancer(reasoner).Enhance(context.Background(), "some claim", nil)
	assert.ErrorIs(t, err, llm.ErrReasoningUnavailable)
}

func TestEnhanceCapsQueriesAtThree(t *testing.T) {
	reasoner := &stubReasoner{responses: []*llm.Enhancement{{
		ClarifiedClaim: "c",
		Queries:        []string{"a", "b", "c", "d", "e"},
	}}}

	eq, err := NewEnhancer(reasoner).Enhance(context.Background(), "claim", nil)
	require.NoError(t, err)
	assert.Len(t, eq.Queries, 3)
}

func TestAmbiguousClaimAsksClarifierAndReEnhances(t *testing.T) {
	reasoner := &stubReasoner{responses: []*llm.Enhancement{
		{
			ClarifiedClaim:      "ambiguous",
			Queries:             []string{"q"},
			IsAmbiguous:         true,
			ClarificationNeeded: "Which Jordan?",
			Options:             []string{"Michael Jordan", "the country Jordan"},
		},
		{
			ClarifiedClaim: "Michael Jordan won six NBA titles",
			Queries:        []string{"Michael Jordan six NBA championships"},
		},
	}}
	clarifier := &stubClarifier{answer: "Michael Jordan won six titles"}

	eq, err := NewEnhancer(reasoner).Enhance(context.Background(), "Jordan won six titles", clarifier)
	require.NoError(t, err)

	require.NotNil(t, clarifier.asked)
	assert.Equal(t, "Which Jordan?", clarifier.asked.Question)
	assert.Equal(t, 2, reasoner.calls)
	assert.Equal(t, "Michael Jordan won six titles", reasoner.prompts[1])
	assert.True(t, eq.AmbiguityDetected)
	assert.Equal(t, "Which Jordan?", eq.ClarificationContext)
	assert.Equal(t, "Michael Jordan won six NBA titles", eq.Clarified)
}

func TestClarifierKeepOriginalSkipsSecondRoundTrip(t *testing.T) {
	reasoner := &stubReasoner{responses: []*llm.Enhancement{{
		ClarifiedClaim:      "as stated",
		Queries:             []string{"q1"},
		IsAmbiguous:         true,
		ClarificationNeeded: "Which year?",
	}}}
	clarifier := &stubClarifier{answer: "Jordan won six titles"}

	eq, err := NewEnhancer(reasoner).Enhance(context.Background(), "Jordan won six titles", clarifier)
	require.NoError(t, err)

	assert.Equal(t, 1, reasoner.calls)
	assert.Equal(t, "Which year?", eq.ClarificationContext)
}

func TestClarifierFailureFallsBackToOriginal(t *testing.T) {
	reasoner := &stubReasoner{responses: []*llm.Enhancement{{
		ClarifiedClaim:      "as stated",
		Queries:             []string{"q1"},
		IsAmbiguous:         true,
		ClarificationNeeded: "Which one?",
	}}}
	clarifier := &stubClarifier{err: fmt.Errorf("connection closed")}

	eq, err := NewEnhancer(reasoner).Enhance(context.Background(), "claim", clarifier)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, eq.Queries)
	assert.Equal(t, 1, reasoner.calls)
}

func TestExtractEntitiesEmptyOnShortInput(t *testing.T) {
	// Local tagging never fails the plan, worst case it yields no entities.
	eq := (&Enhancer{}).passThrough("x")
	assert.Equal(t, []string{"x"}, eq.Queries)
	assert.True(t, eq.PassThrough)
}
