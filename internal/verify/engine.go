package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claimlens/backend/internal/enhance"
	"github.com/claimlens/backend/internal/evidence"
	"github.com/claimlens/backend/internal/llm"
	"github.com/claimlens/backend/internal/metrics"
	"github.com/claimlens/backend/internal/search/web"
	"github.com/claimlens/backend/internal/storage/models"
	"github.com/claimlens/backend/pkg/logger"
)

// Historian persists completed verifications. Recording failures never fail
// the verification itself.
type Historian interface {
	InsertVerification(record *models.VerificationRecord) error
}

// Engine owns the verification pipeline: enhance the claim, retrieve internal
// evidence, run a first verification pass, and when the model asks for it and
// configuration allows, search the web, cache the results into the evidence
// store, and re-verify over the merged set.
type Engine struct {
	enhancer  Enhancer
	retriever Retriever
	analyst   Analyst
	searcher  Searcher
	store     evidence.Store
	history   Historian

	maxSearchResults int
	logger           *zap.Logger
}

type EngineConfig struct {
	Enhancer  Enhancer
	Retriever Retriever
	Analyst   Analyst
	Searcher  Searcher
	Store     evidence.Store
	History   Historian

	MaxSearchResults int
}

func NewEngine(cfg EngineConfig) *Engine {
	maxResults := cfg.MaxSearchResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Engine{
		enhancer:         cfg.Enhancer,
		retriever:        cfg.Retriever,
		analyst:          cfg.Analyst,
		searcher:         cfg.Searcher,
		store:            cfg.Store,
		history:          cfg.History,
		maxSearchResults: maxResults,
		logger:           logger.GetLogger(),
	}
}

// Verify runs the full pipeline for one claim. Only two failures surface as
// errors: cancellation, and the inability to obtain any evidence from any
// path. Everything else degrades into the result itself.
func (e *Engine) Verify(ctx context.Context, claim string, opts Options) (*Result, error) {
	start := time.Now()

	result := &Result{
		ID:        uuid.NewString(),
		Claim:     claim,
		CreatedAt: start,
	}

	plan, err := e.enhanceStage(ctx, claim, opts, result)
	if err != nil {
		return nil, err
	}
	result.Enhancement = plan

	internalSet, storeDown, err := e.retrieveStage(ctx, plan, opts, result)
	if err != nil {
		return nil, err
	}

	firstAnalysis, err := e.firstPassStage(ctx, plan, internalSet, opts, result)
	if err != nil {
		return nil, err
	}

	result.FirstPass = verdictFromAnalysis(firstAnalysis, internalSet)
	result.Escalation = &EscalationDecision{
		NeedsExternalSearch: firstAnalysis.NeedsExternalSearch,
		Rationale:           firstAnalysis.SearchRationale,
		SuggestedQuery:      firstAnalysis.SuggestedQuery,
	}

	final := result.FirstPass

	if firstAnalysis.NeedsExternalSearch && opts.ExternalSearch && e.searcher != nil {
		secondVerdict, err := e.escalationStage(ctx, plan, internalSet, firstAnalysis, opts, result)
		if err != nil {
			return nil, err
		}
		if secondVerdict != nil {
			result.SecondPass = secondVerdict
			result.Escalated = true
			final = secondVerdict
		}
	} else if firstAnalysis.NeedsExternalSearch && !opts.ExternalSearch {
		result.Notes = append(result.Notes, "external search requested by analysis but disabled by configuration")
	}

	if storeDown && !result.Escalated && len(internalSet) == 0 {
		// No internal evidence and no usable external evidence either.
		return nil, fmt.Errorf("%w: evidence store unreachable and external search produced nothing", ErrVerificationUnavailable)
	}

	result.Final = final
	result.Breakdown = breakdownOf(final)
	result.Duration = time.Since(start)

	e.observe(opts, StageDone, string(final.Label))
	metrics.RecordVerification(string(final.Label), result.Escalated, result.Duration.Seconds())

	e.record(result, opts)

	return result, nil
}

func (e *Engine) enhanceStage(ctx context.Context, claim string, opts Options, result *Result) (*enhance.EnhancedQuery, error) {
	if !opts.Enhance || e.enhancer == nil {
		return passThroughPlan(claim), nil
	}

	e.observe(opts, StageEnhancing, "")

	plan, err := e.enhancer.Enhance(ctx, claim, opts.Clarifier)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// An unreachable reasoning model must not block verification.
		e.logger.Warn("Enhancement unavailable, passing claim through", zap.Error(err))
		result.Notes = append(result.Notes, "query enhancement unavailable, claim used verbatim")
		return passThroughPlan(claim), nil
	}

	if plan.PassThrough {
		result.Notes = append(result.Notes, "query enhancement fell back to pass-through")
	}

	return plan, nil
}

func (e *Engine) retrieveStage(ctx context.Context, plan *enhance.EnhancedQuery, opts Options, result *Result) (evidence.Set, bool, error) {
	e.observe(opts, StageRetrieving, "")

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	set, err := e.retriever.Retrieve(ctx, plan.Queries, topK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if !errors.Is(err, evidence.ErrStoreUnavailable) {
			return nil, false, err
		}
		if !opts.ExternalSearch || e.searcher == nil {
			// No internal evidence and no external path: nothing to verify
			// against.
			return nil, false, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		}
		e.logger.Warn("Evidence store unavailable, relying on external search", zap.Error(err))
		result.Notes = append(result.Notes, "internal evidence store unavailable")
		return evidence.Set{}, true, nil
	}

	return set, false, nil
}

func (e *Engine) firstPassStage(ctx context.Context, plan *enhance.EnhancedQuery, set evidence.Set, opts Options, result *Result) (*llm.Analysis, error) {
	if len(set) == 0 {
		// Nothing to analyze; skip the model round-trip and ask for external
		// evidence directly.
		return &llm.Analysis{
			Verdict:             llm.VerdictUnverified,
			Confidence:          0,
			Rationale:           "No matching evidence found in the evidence store.",
			NeedsExternalSearch: true,
			SearchRationale:     "no internal evidence was retrieved",
			SuggestedQuery:      bestQuery(plan),
		}, nil
	}

	e.observe(opts, StageFirstPass, "")

	analysis, err := e.analyst.Analyze(ctx, plan.Clarified, set)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A model that cannot produce a trusted verdict cannot be trusted
		// with the escalation decision either.
		e.logger.Warn("First verification pass failed", zap.Error(err))
		result.Notes = append(result.Notes, degradationNote(err))
		return &llm.Analysis{
			Verdict:    llm.VerdictUnverified,
			Confidence: 0,
			Rationale:  "Verification analysis was unavailable; the claim could not be assessed.",
		}, nil
	}

	return analysis, nil
}

// escalationStage runs web search, caches the results, and re-verifies. A nil
// verdict with nil error means the branch degraded and the first-pass verdict
// stands.
func (e *Engine) escalationStage(ctx context.Context, plan *enhance.EnhancedQuery, internalSet evidence.Set, firstAnalysis *llm.Analysis, opts Options, result *Result) (*Verdict, error) {
	query := firstAnalysis.SuggestedQuery
	if query == "" {
		query = bestQuery(plan)
	}

	e.observe(opts, StageSearching, query)

	searchResults, err := e.searcher.Search(ctx, query, e.maxSearchResults)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("External search unavailable", zap.Error(err))
		result.Notes = append(result.Notes, "external search attempted but unavailable; first-pass verdict is final")
		metrics.RecordEscalation("search_unavailable")
		return nil, nil
	}

	// Cache only after a completed search; a cancelled search must never
	// persist partial fetches.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.observe(opts, StageCaching, "")

	now := time.Now()
	externalHits := make([]evidence.Hit, 0, len(searchResults))
	for i, r := range searchResults {
		item := externalItem(r, now)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if upsertErr := e.store.Upsert(ctx, item); upsertErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Still usable for this pass, just not persisted for future ones.
			e.logger.Warn("Failed to cache external evidence",
				zap.String("id", item.ID),
				zap.Error(upsertErr),
			)
		} else {
			metrics.RecordExternalResultCached()
		}

		externalHits = append(externalHits, evidence.Hit{
			Item:       item,
			Score:      externalScore(i),
			QueryIndex: len(plan.Queries),
		})
	}

	if len(externalHits) == 0 {
		result.Notes = append(result.Notes, "external search returned no results; first-pass verdict is final")
		metrics.RecordEscalation("no_results")
		return nil, nil
	}

	merged := evidence.Merge(internalSet, externalHits)
	internal, external := merged.CountByOrigin()
	e.logger.Debug("Merged evidence for second pass",
		zap.Int("internal", internal),
		zap.Int("external", external),
	)

	e.observe(opts, StageSecondPass, "")

	analysis, err := e.analyst.Analyze(ctx, plan.Clarified, merged)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("Second verification pass failed", zap.Error(err))
		result.Notes = append(result.Notes, "second verification pass failed; first-pass verdict is final")
		metrics.RecordEscalation("second_pass_failed")
		return nil, nil
	}

	metrics.RecordEscalation("completed")

	return verdictFromAnalysis(analysis, merged), nil
}

func (e *Engine) record(result *Result, opts Options) {
	if e.history == nil {
		return
	}

	record := &models.VerificationRecord{
		ID:            result.ID,
		UserID:        opts.UserID,
		Claim:         result.Claim,
		Verdict:       string(result.Final.Label),
		Confidence:    result.Final.Confidence,
		Rationale:     result.Final.Rationale,
		Escalated:     result.Escalated,
		InternalCount: result.Breakdown.Internal,
		ExternalCount: result.Breakdown.External,
		DurationMS:    result.Duration.Milliseconds(),
		CreatedAt:     result.CreatedAt,
	}
	for _, cited := range result.Final.Supporting {
		record.Evidence = append(record.Evidence, evidenceRef(result.ID, cited, "supporting"))
	}
	for _, cited := range result.Final.Contradicting {
		record.Evidence = append(record.Evidence, evidenceRef(result.ID, cited, "contradicting"))
	}

	if err := e.history.InsertVerification(record); err != nil {
		e.logger.Warn("Failed to record verification history",
			zap.String("verification_id", result.ID),
			zap.Error(err),
		)
	}
}

func evidenceRef(verificationID string, cited CitedEvidence, role string) models.EvidenceRef {
	return models.EvidenceRef{
		VerificationID: verificationID,
		EvidenceID:     cited.ID,
		SourceURL:      cited.SourceURL,
		Origin:         string(cited.Origin),
		Role:           role,
		Snippet:        cited.Snippet,
	}
}

func (e *Engine) observe(opts Options, stage Stage, detail string) {
	if opts.Observer != nil {
		opts.Observer(stage, detail)
	}
}

func passThroughPlan(claim string) *enhance.EnhancedQuery {
	return &enhance.EnhancedQuery{
		Original:    claim,
		Clarified:   claim,
		Queries:     []string{claim},
		PassThrough: true,
	}
}

func bestQuery(plan *enhance.EnhancedQuery) string {
	if len(plan.Queries) > 0 {
		return plan.Queries[0]
	}
	return plan.Original
}

func verdictFromAnalysis(analysis *llm.Analysis, set evidence.Set) *Verdict {
	v := &Verdict{
		Label:      analysis.Verdict,
		Confidence: analysis.Confidence,
		Rationale:  analysis.Rationale,
	}
	for _, ref := range analysis.Supporting {
		if ref.Index < 0 || ref.Index >= len(set) {
			continue
		}
		v.Supporting = append(v.Supporting, CitedEvidence{Item: set[ref.Index].Item, Snippet: ref.Snippet})
	}
	for _, ref := range analysis.Contradicting {
		if ref.Index < 0 || ref.Index >= len(set) {
			continue
		}
		v.Contradicting = append(v.Contradicting, CitedEvidence{Item: set[ref.Index].Item, Snippet: ref.Snippet})
	}
	return v
}

// externalItem converts one web search result into a storable evidence item.
// The ID derives from the URL so re-fetching the same result is idempotent.
func externalItem(r web.Result, now time.Time) evidence.Item {
	text := r.Content
	if text == "" {
		text = r.Snippet
	}
	if r.Title != "" {
		text = r.Title + "\n" + text
	}

	return evidence.Item{
		ID:          evidence.ExternalID(r.URL),
		Text:        text,
		SourceURL:   r.URL,
		PublishedAt: r.PublishedAt,
		Origin:      evidence.OriginExternal,
		RetrievedAt: now,
	}
}

func degradationNote(err error) string {
	switch {
	case errors.Is(err, llm.ErrVerdictParse):
		return "verdict response was malformed; result degraded to UNVERIFIED"
	case errors.Is(err, llm.ErrReasoningUnavailable):
		return "reasoning model unavailable; result degraded to UNVERIFIED"
	default:
		return "verification pass failed; result degraded to UNVERIFIED"
	}
}

// externalScore assigns relevance to web results by their rank, keeping the
// search engine's ordering while staying inside [0,1].
func externalScore(rank int) float64 {
	score := 1.0 - 0.05*float64(rank)
	if score < 0.1 {
		return 0.1
	}
	return score
}

// breakdownOf counts unique cited items by origin.
func breakdownOf(v *Verdict) Breakdown {
	seen := make(map[string]evidence.Origin)
	for _, cited := range v.Supporting {
		seen[cited.ID] = cited.Origin
	}
	for _, cited := range v.Contradicting {
		seen[cited.ID] = cited.Origin
	}

	var b Breakdown
	for _, origin := range seen {
		if origin == evidence.OriginExternal {
			b.External++
		} else {
			b.Internal++
		}
	}
	return b
}
