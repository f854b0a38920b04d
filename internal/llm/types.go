package llm

import "errors"

var (
	// ErrReasoningUnavailable means the reasoning backend could not be
	// reached or refused the request after retries.
	ErrReasoningUnavailable = errors.New("reasoning model unavailable")

	// ErrVerdictParse means the model answered but the response could not
	// be decoded into a usable verdict.
	ErrVerdictParse = errors.New("unparseable verdict response")

	// ErrEnhanceParse means the model answered but the response could not
	// be decoded into a usable query enhancement.
	ErrEnhanceParse = errors.New("unparseable enhancement response")
)

// Verdict is a claim label.
type Verdict string

const (
	VerdictTrue       Verdict = "TRUE"
	VerdictFalse      Verdict = "FALSE"
	VerdictMixed      Verdict = "MIXED"
	VerdictUnverified Verdict = "UNVERIFIED"
)

// EvidenceRef cites one evidence item by its position in the list the model
// was shown.
type EvidenceRef struct {
	Index   int    `json:"index"`
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// Analysis is the outcome of a single verification round-trip: the verdict
// plus the model's escalation decision.
type Analysis struct {
	Verdict       Verdict
	Confidence    float64
	Rationale     string
	Supporting    []EvidenceRef
	Contradicting []EvidenceRef

	NeedsExternalSearch bool
	SearchRationale     string
	SuggestedQuery      string
}

// Enhancement is the outcome of the query-enhancement round-trip.
type Enhancement struct {
	ClarifiedClaim      string
	Queries             []string
	IsAmbiguous         bool
	ClarificationNeeded string
	Options             []string
	Entities            Entities
}

// Entities are named entities extracted from the claim.
type Entities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Dates         []string `json:"dates"`
	Locations     []string `json:"locations"`
}
