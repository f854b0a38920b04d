package verify

import (
	"fmt"
	"strings"
)

// Record is the presentation form of a Result: flat, serializable, and safe
// to hand to any surface (HTTP response, websocket frame, terminal output).
type Record struct {
	ID         string   `json:"id"`
	Claim      string   `json:"claim"`
	Clarified  string   `json:"clarified_claim,omitempty"`
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
	Escalated  bool     `json:"escalated"`
	TwoPass    bool     `json:"two_pass"`

	Breakdown Breakdown `json:"evidence_breakdown"`

	Supporting    []Citation `json:"supporting"`
	Contradicting []Citation `json:"contradicting"`

	Queries []string `json:"queries"`
	Notes   []string `json:"notes,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// Citation is one cited source.
type Citation struct {
	Source    string `json:"source"`
	Origin    string `json:"origin"`
	Snippet   string `json:"snippet,omitempty"`
	TrustRank *int   `json:"trust_rank,omitempty"`
}

// Format maps a Result onto its presentation record. It only rearranges the
// result; it never invents evidence that the final verdict did not cite.
func Format(result *Result) Record {
	record := Record{
		ID:         result.ID,
		Claim:      result.Claim,
		Verdict:    string(result.Final.Label),
		Confidence: result.Final.Confidence,
		Rationale:  result.Final.Rationale,
		Escalated:  result.Escalated,
		TwoPass:    result.SecondPass != nil,
		Breakdown:  result.Breakdown,
		Notes:      result.Notes,
		DurationMS: result.Duration.Milliseconds(),
	}

	if result.Enhancement != nil {
		record.Queries = result.Enhancement.Queries
		if result.Enhancement.Clarified != result.Claim {
			record.Clarified = result.Enhancement.Clarified
		}
	}

	for _, cited := range result.Final.Supporting {
		record.Supporting = append(record.Supporting, citationOf(cited))
	}
	for _, cited := range result.Final.Contradicting {
		record.Contradicting = append(record.Contradicting, citationOf(cited))
	}

	return record
}

func citationOf(cited CitedEvidence) Citation {
	source := cited.SourceURL
	if source == "" {
		source = cited.SourceID
	}
	return Citation{
		Source:    source,
		Origin:    string(cited.Origin),
		Snippet:   cited.Snippet,
		TrustRank: cited.TrustRank,
	}
}

// RenderText renders a record for terminal or log output.
func RenderText(record Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Claim: %s\n", record.Claim)
	if record.Clarified != "" {
		fmt.Fprintf(&b, "Interpreted as: %s\n", record.Clarified)
	}
	fmt.Fprintf(&b, "Verdict: %s (confidence %.0f%%)\n", record.Verdict, record.Confidence*100)
	fmt.Fprintf(&b, "Rationale: %s\n", record.Rationale)
	fmt.Fprintf(&b, "Evidence: %d internal, %d external",
		record.Breakdown.Internal, record.Breakdown.External)
	if record.Escalated {
		b.WriteString(" (web search used)")
	}
	b.WriteString("\n")

	if len(record.Supporting) > 0 {
		b.WriteString("Supporting:\n")
		for _, c := range record.Supporting {
			fmt.Fprintf(&b, "  + %s\n", c.Source)
		}
	}
	if len(record.Contradicting) > 0 {
		b.WriteString("Contradicting:\n")
		for _, c := range record.Contradicting {
			fmt.Fprintf(&b, "  - %s\n", c.Source)
		}
	}

	for _, note := range record.Notes {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}

	return b.String()
}

// RenderCompact renders a one-line summary.
func RenderCompact(record Record) string {
	return fmt.Sprintf("%s [%.0f%%] %s", record.Verdict, record.Confidence*100, record.Claim)
}
