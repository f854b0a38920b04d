package verify

import (
	"context"
	"time"

	"github.com/claimlens/backend/internal/enhance"
	"github.com/claimlens/backend/internal/evidence"
	"github.com/claimlens/backend/internal/llm"
	"github.com/claimlens/backend/internal/search/web"
)

// Stage identifies a point in the verification pipeline. Observers receive
// stages in pipeline order; escalation stages appear only when that branch
// runs.
type Stage string

const (
	StageEnhancing  Stage = "enhancing"
	StageRetrieving Stage = "retrieving"
	StageFirstPass  Stage = "first_pass"
	StageSearching  Stage = "searching"
	StageCaching    Stage = "caching"
	StageSecondPass Stage = "second_pass"
	StageDone       Stage = "done"
)

// StageObserver is notified as the pipeline advances. Used to stream progress
// over a websocket; nil means no streaming.
type StageObserver func(stage Stage, detail string)

// Enhancer produces the retrieval plan for a claim.
type Enhancer interface {
	Enhance(ctx context.Context, claim string, clarifier enhance.Clarifier) (*enhance.EnhancedQuery, error)
}

// Retriever searches the evidence store across query variants.
type Retriever interface {
	Retrieve(ctx context.Context, queries []string, topK int) (evidence.Set, error)
}

// Analyst runs one verification pass over a claim and evidence set.
type Analyst interface {
	Analyze(ctx context.Context, claim string, ev evidence.Set) (*llm.Analysis, error)
}

// Searcher performs external web search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]web.Result, error)
}

// Options controls one verification request.
type Options struct {
	Enhance        bool
	ExternalSearch bool
	TopK           int
	UserID         string

	// Clarifier enables interactive disambiguation when non-nil.
	Clarifier enhance.Clarifier

	// Observer receives stage notifications when non-nil.
	Observer StageObserver
}

// DefaultOptions returns the option set used when the caller specifies
// nothing.
func DefaultOptions() Options {
	return Options{
		Enhance:        true,
		ExternalSearch: true,
		TopK:           10,
	}
}

// CitedEvidence is one evidence item cited by a verdict, with the snippet the
// model quoted.
type CitedEvidence struct {
	evidence.Item
	Snippet string `json:"snippet,omitempty"`
}

// Verdict is the outcome of one verification pass.
type Verdict struct {
	Label         llm.Verdict     `json:"label"`
	Confidence    float64         `json:"confidence"`
	Rationale     string          `json:"rationale"`
	Supporting    []CitedEvidence `json:"supporting"`
	Contradicting []CitedEvidence `json:"contradicting"`
}

// EscalationDecision records whether and why the model asked for external
// search after the first pass.
type EscalationDecision struct {
	NeedsExternalSearch bool   `json:"needs_external_search"`
	Rationale           string `json:"rationale"`
	SuggestedQuery      string `json:"suggested_query,omitempty"`
}

// Breakdown counts the final verdict's cited evidence by origin.
type Breakdown struct {
	Internal int `json:"internal"`
	External int `json:"external"`
}

// Result is the complete outcome of one verification request.
type Result struct {
	ID          string                 `json:"id"`
	Claim       string                 `json:"claim"`
	Enhancement *enhance.EnhancedQuery `json:"enhancement"`
	FirstPass   *Verdict               `json:"first_pass"`
	Escalation  *EscalationDecision    `json:"escalation,omitempty"`
	SecondPass  *Verdict               `json:"second_pass,omitempty"`
	Final       *Verdict               `json:"final"`
	Escalated   bool                   `json:"escalated"`
	Breakdown   Breakdown              `json:"evidence_breakdown"`
	Notes       []string               `json:"notes,omitempty"`
	Duration    time.Duration          `json:"duration"`
	CreatedAt   time.Time              `json:"created_at"`
}
