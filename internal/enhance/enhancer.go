package enhance

import (
	"context"
	"errors"
	"strings"

	prose "github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/claimlens/backend/internal/llm"
	"github.com/claimlens/backend/pkg/logger"
)

// ReasoningClient is the slice of the LLM client the enhancer needs.
type ReasoningClient interface {
	EnhanceQuery(ctx context.Context, claim string) (*llm.Enhancement, error)
}

// Clarification is a question put to the user when a claim is ambiguous.
type Clarification struct {
	Question string
	Options  []string
	Original string
}

// Clarifier resolves an ambiguous claim, typically by asking the user. It
// returns the interpretation to proceed with. Implementations should return
// the original claim when the user declines or the wait times out.
type Clarifier interface {
	Clarify(ctx context.Context, c Clarification) (string, error)
}

// EnhancedQuery is the retrieval plan for one claim.
type EnhancedQuery struct {
	Original             string       `json:"original"`
	Clarified            string       `json:"clarified"`
	Queries              []string     `json:"queries"`
	AmbiguityDetected    bool         `json:"ambiguity_detected"`
	ClarificationContext string       `json:"clarification_context,omitempty"`
	Entities             llm.Entities `json:"entities"`
	PassThrough          bool         `json:"pass_through"`
}

// Enhancer turns a raw claim into one or more retrieval queries.
type Enhancer struct {
	client ReasoningClient
	logger *zap.Logger
}

func NewEnhancer(client ReasoningClient) *Enhancer {
	return &Enhancer{
		client: client,
		logger: logger.GetLogger(),
	}
}

// Enhance produces the retrieval plan for a claim. The clarifier, when
// non-nil, is consulted on ambiguous claims; a nil clarifier means
// non-interactive operation. A malformed model response degrades to a
// pass-through plan; an unreachable model surfaces
// llm.ErrReasoningUnavailable so the caller can decide.
func (e *Enhancer) Enhance(ctx context.Context, claim string, clarifier Clarifier) (*EnhancedQuery, error) {
	enhancement, err := e.client.EnhanceQuery(ctx, claim)
	if err != nil {
		if errors.Is(err, llm.ErrEnhanceParse) {
			e.logger.Warn("Enhancement response unusable, passing claim through", zap.Error(err))
			return e.passThrough(claim), nil
		}
		return nil, err
	}

	if enhancement.IsAmbiguous && clarifier != nil {
		return e.resolveAmbiguity(ctx, claim, enhancement, clarifier)
	}

	return fromEnhancement(claim, enhancement), nil
}

func (e *Enhancer) resolveAmbiguity(ctx context.Context, claim string, enhancement *llm.Enhancement, clarifier Clarifier) (*EnhancedQuery, error) {
	chosen, err := clarifier.Clarify(ctx, Clarification{
		Question: enhancement.ClarificationNeeded,
		Options:  enhancement.Options,
		Original: claim,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("Clarification failed, keeping original interpretation", zap.Error(err))
		chosen = claim
	}

	if strings.TrimSpace(chosen) == "" || chosen == claim {
		eq := fromEnhancement(claim, enhancement)
		eq.ClarificationContext = enhancement.ClarificationNeeded
		return eq, nil
	}

	// Re-enhance once with the chosen interpretation. A second round of
	// ambiguity is not asked about again.
	refined, err := e.client.EnhanceQuery(ctx, chosen)
	if err != nil {
		if errors.Is(err, llm.ErrEnhanceParse) {
			eq := e.passThrough(chosen)
			eq.Original = claim
			eq.AmbiguityDetected = true
			eq.ClarificationContext = enhancement.ClarificationNeeded
			return eq, nil
		}
		return nil, err
	}

	eq := fromEnhancement(claim, refined)
	eq.Clarified = refined.ClarifiedClaim
	eq.AmbiguityDetected = true
	eq.ClarificationContext = enhancement.ClarificationNeeded
	return eq, nil
}

func fromEnhancement(original string, enhancement *llm.Enhancement) *EnhancedQuery {
	queries := enhancement.Queries
	if len(queries) > 3 {
		queries = queries[:3]
	}
	if len(queries) == 0 {
		queries = []string{original}
	}

	clarified := enhancement.ClarifiedClaim
	if strings.TrimSpace(clarified) == "" {
		clarified = original
	}

	return &EnhancedQuery{
		Original:          original,
		Clarified:         clarified,
		Queries:           queries,
		AmbiguityDetected: enhancement.IsAmbiguous,
		Entities:          enhancement.Entities,
	}
}

// passThrough builds a plan that searches with the claim verbatim. Entities
// come from a local tagger so downstream consumers still get something.
func (e *Enhancer) passThrough(claim string) *EnhancedQuery {
	return &EnhancedQuery{
		Original:    claim,
		Clarified:   claim,
		Queries:     []string{claim},
		Entities:    extractEntities(claim),
		PassThrough: true,
	}
}

// extractEntities runs local NER over the claim. Errors just yield empty
// entity lists.
func extractEntities(claim string) llm.Entities {
	var entities llm.Entities

	doc, err := prose.NewDocument(claim, prose.WithExtraction(true), prose.WithSegmentation(false))
	if err != nil {
		return entities
	}

	for _, ent := range doc.Entities() {
		switch ent.Label {
		case "PERSON":
			entities.People = append(entities.People, ent.Text)
		case "GPE":
			entities.Locations = append(entities.Locations, ent.Text)
		default:
			entities.Organizations = append(entities.Organizations, ent.Text)
		}
	}

	return entities
}
