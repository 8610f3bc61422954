package agents

import (
	"context"
	"regexp"
	"sort"
)

// WebResult is one search hit.
type WebResult struct {
	Title   string
	URL     string
	Snippet string
}

// WebSearcher finds recent material outside the reference set.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]WebResult, error)
}

// CuratedSearcher searches a fixed index of recent nephrology publications.
// It stands in for a live search API so the dev backend works offline.
type CuratedSearcher struct {
	entries []curatedEntry
}

type curatedEntry struct {
	result WebResult
	terms  map[string]bool
}

func NewCuratedSearcher(results ...WebResult) *CuratedSearcher {
	if len(results) == 0 {
		results = defaultWebIndex()
	}
	s := &CuratedSearcher{}
	for _, r := range results {
		terms := make(map[string]bool)
		for _, t := range tokenize(r.Title + " " + r.Snippet) {
			terms[t] = true
		}
		s.entries = append(s.entries, curatedEntry{result: r, terms: terms})
	}
	return s
}

func (s *CuratedSearcher) Search(ctx context.Context, query string, limit int) ([]WebResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 3
	}
	type scored struct {
		r     WebResult
		score int
	}
	var ranked []scored
	q := tokenize(query)
	for _, e := range s.entries {
		score := 0
		for _, t := range q {
			if e.terms[t] {
				score++
			}
		}
		ranked = append(ranked, scored{r: e.result, score: score})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	out := make([]WebResult, 0, limit)
	for _, r := range ranked {
		if len(out) == limit {
			break
		}
		out = append(out, r.r)
	}
	return out, nil
}

var webIntent = regexp.MustCompile(`(?i)\b(latest|recent|new|newest|current)\s+(research|drugs?|studies|study|treatments?|trials?|guidelines?|findings|news)\b|\b20\d\d\s+updates?\b|\bupdates?\s+(in|for)\s+20\d\d\b`)

// wantsWebSearch reports whether the user explicitly asked for recent material.
func wantsWebSearch(message string) bool {
	return webIntent.MatchString(message)
}

func defaultWebIndex() []WebResult {
	return []WebResult{
		{
			Title:   "SGLT2 inhibitors slow CKD progression in patients with and without diabetes",
			URL:     "https://www.kidney.org/news/sglt2-inhibitors-ckd",
			Snippet: "Trials of dapagliflozin and empagliflozin show reduced decline in kidney function and fewer cardiovascular events in chronic kidney disease.",
		},
		{
			Title:   "Finerenone approved for CKD associated with type 2 diabetes",
			URL:     "https://www.fda.gov/drugs/finerenone-ckd",
			Snippet: "The nonsteroidal mineralocorticoid receptor antagonist lowered the risk of kidney failure and sustained eGFR decline.",
		},
		{
			Title:   "KDIGO 2024 clinical practice guideline for the evaluation and management of CKD",
			URL:     "https://kdigo.org/guidelines/ckd-evaluation-and-management/",
			Snippet: "Updated recommendations on staging, blood pressure targets, diet, and new drug therapies for chronic kidney disease.",
		},
		{
			Title:   "GLP-1 receptor agonists and kidney outcomes: recent studies",
			URL:     "https://www.nejm.org/doi/semaglutide-kidney-outcomes",
			Snippet: "Semaglutide reduced major kidney disease events in patients with type 2 diabetes and CKD in a large randomized trial.",
		},
		{
			Title:   "Research on recovery after acute kidney injury",
			URL:     "https://www.niddk.nih.gov/research/aki-recovery",
			Snippet: "Recent research follows long-term kidney function after acute kidney injury and identifies follow-up care that improves recovery.",
		},
	}
}
