package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimlens/backend/internal/enhance"
	"github.com/claimlens/backend/internal/evidence"
	"github.com/claimlens/backend/internal/llm"
	"github.com/claimlens/backend/internal/search/web"
	"github.com/claimlens/backend/internal/verify"
)

type fakeEnhancer struct{}

func (fakeEnhancer) Enhance(_ context.Context, claim string, _ enhance.Clarifier) (*enhance.EnhancedQuery, error) {
	return &enhance.EnhancedQuery{Original: claim, Clarified: claim, Queries: []string{claim}}, nil
}

type fakeRetriever struct {
	set evidence.Set
}

func (f *fakeRetriever) Retrieve(context.Context, []string, int) (evidence.Set, error) {
	return f.set, nil
}

type fakeAnalyst struct {
	analyses []*llm.Analysis
	calls    int
}

func (f *fakeAnalyst) Analyze(context.Context, string, evidence.Set) (*llm.Analysis, error) {
	a := f.analyses[f.calls]
	f.calls++
	return a, nil
}

type fakeSearcher struct {
	calls int
}

func (f *fakeSearcher) Search(context.Context, string, int) ([]web.Result, error) {
	f.calls++
	return nil, nil
}

type fakeStore struct{}

func (fakeStore) Search(context.Context, string, int) ([]evidence.Hit, error) { return nil, nil }
func (fakeStore) Upsert(context.Context, evidence.Item) error                 { return nil }

func handlerFixture(analyst *fakeAnalyst, searcher *fakeSearcher, defaults verify.Options) *fiber.App {
	engine := verify.NewEngine(verify.EngineConfig{
		Enhancer: fakeEnhancer{},
		Retriever: &fakeRetriever{set: evidence.Set{{
			Item: evidence.Item{
				ID:        "item-0",
				Text:      "supporting evidence",
				SourceURL: "https://example.org/a",
				Origin:    evidence.OriginInternal,
			},
			Score: 0.9,
		}}},
		Analyst:  analyst,
		Searcher: searcher,
		Store:    fakeStore{},
	})

	app := fiber.New()
	handler := NewVerifyHandler(engine, nil, defaults)
	app.Post("/verify", handler.HandleVerify)
	return app
}

func postVerify(t *testing.T, app *fiber.App, body string) (int, string) {
	t.Helper()

	req := httptest.NewRequest("POST", "/verify", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func confidentAnalyst() *fakeAnalyst {
	return &fakeAnalyst{analyses: []*llm.Analysis{{
		Verdict:    llm.VerdictTrue,
		Confidence: 0.85,
		Rationale:  "well supported",
		Supporting: []llm.EvidenceRef{{Index: 0, Snippet: "quoted"}},
	}}}
}

func TestHandleVerifyDefaultsToJSON(t *testing.T) {
	app := handlerFixture(confidentAnalyst(), &fakeSearcher{}, verify.DefaultOptions())

	status, body := postVerify(t, app, `{"claim": "the sky is blue"}`)
	require.Equal(t, fiber.StatusOK, status)

	var record verify.Record
	require.NoError(t, json.Unmarshal([]byte(body), &record))
	assert.Equal(t, "TRUE", record.Verdict)
	assert.Equal(t, "the sky is blue", record.Claim)
}

func TestHandleVerifyTextFormat(t *testing.T) {
	app := handlerFixture(confidentAnalyst(), &fakeSearcher{}, verify.DefaultOptions())

	status, body := postVerify(t, app, `{"claim": "the sky is blue", "format": "text"}`)
	require.Equal(t, fiber.StatusOK, status)

	assert.True(t, strings.HasPrefix(body, "Claim: the sky is blue\n"), body)
	assert.Contains(t, body, "Verdict: TRUE (confidence 85%)")
	assert.Contains(t, body, "Supporting:")
}

func TestHandleVerifyCompactFormatViaQueryParam(t *testing.T) {
	app := handlerFixture(confidentAnalyst(), &fakeSearcher{}, verify.DefaultOptions())

	req := httptest.NewRequest("POST", "/verify?format=compact",
		bytes.NewReader([]byte(`{"claim": "the sky is blue"}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "TRUE [85%] the sky is blue", string(raw))
}

func TestHandleVerifyConfigDefaultsGateExternalSearch(t *testing.T) {
	analyst := &fakeAnalyst{analyses: []*llm.Analysis{{
		Verdict:             llm.VerdictUnverified,
		Confidence:          0.4,
		Rationale:           "not enough coverage",
		NeedsExternalSearch: true,
		SuggestedQuery:      "sky color evidence",
	}}}
	searcher := &fakeSearcher{}

	defaults := verify.DefaultOptions()
	defaults.ExternalSearch = false

	app := handlerFixture(analyst, searcher, defaults)

	status, body := postVerify(t, app, `{"claim": "the sky is blue"}`)
	require.Equal(t, fiber.StatusOK, status)

	var record verify.Record
	require.NoError(t, json.Unmarshal([]byte(body), &record))
	assert.False(t, record.Escalated)
	assert.Zero(t, searcher.calls)
}

func TestHandleVerifyRequestOverridesConfigDefaults(t *testing.T) {
	analyst := &fakeAnalyst{analyses: []*llm.Analysis{
		{
			Verdict:             llm.VerdictUnverified,
			Confidence:          0.4,
			Rationale:           "not enough coverage",
			NeedsExternalSearch: true,
			SuggestedQuery:      "sky color evidence",
		},
		{
			Verdict:    llm.VerdictTrue,
			Confidence: 0.9,
			Rationale:  "confirmed by web coverage",
			Supporting: []llm.EvidenceRef{{Index: 0, Snippet: "quoted"}},
		},
	}}
	searcher := &fakeSearcher{}

	defaults := verify.DefaultOptions()
	defaults.ExternalSearch = false

	app := handlerFixture(analyst, searcher, defaults)

	status, _ := postVerify(t, app,
		`{"claim": "the sky is blue", "options": {"external_search": true}}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, searcher.calls)
}

func TestHandleVerifyRejectsEmptyClaim(t *testing.T) {
	app := handlerFixture(confidentAnalyst(), &fakeSearcher{}, verify.DefaultOptions())

	status, _ := postVerify(t, app, `{"claim": ""}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
