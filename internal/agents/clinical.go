package agents

import (
	"context"
	"fmt"
	"strings"
)

const retrievalTopK = 3

// Clinical answers medical questions from the knowledge base, or from web
// search when the patient explicitly asks for recent material.
type Clinical struct {
	kb  *KnowledgeBase
	web WebSearcher
}

func NewClinical(kb *KnowledgeBase, web WebSearcher) *Clinical {
	if kb == nil {
		kb = NewKnowledgeBase(BuiltinDocuments())
	}
	if web == nil {
		web = NewCuratedSearcher()
	}
	return &Clinical{kb: kb, web: web}
}

// Tool names reported in agent events.
const (
	ToolRAG       = "rag_tool"
	ToolWebSearch = "web_search_tool"
)

// Tool reports which tool Respond will use for message.
func (c *Clinical) Tool(message string) string {
	if wantsWebSearch(message) {
		return ToolWebSearch
	}
	return ToolRAG
}

func (c *Clinical) Respond(ctx context.Context, st *State, message string) (Result, error) {
	if c.Tool(message) == ToolWebSearch {
		return c.fromWeb(ctx, message)
	}
	return c.fromKnowledgeBase(st, message)
}

func (c *Clinical) fromWeb(ctx context.Context, message string) (Result, error) {
	results, err := c.web.Search(ctx, message, retrievalTopK)
	if err != nil {
		return Result{}, fmt.Errorf("web search: %w", err)
	}
	if len(results) == 0 {
		return clinicalResult("I couldn't find recent publications on that topic.", nil, SourceNone), nil
	}

	var b strings.Builder
	b.WriteString("Here is what recent sources report:\n")
	citations := make([]string, 0, len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "\n- %s: %s", r.Title, r.Snippet)
		citations = append(citations, fmt.Sprintf("%s (%s)", r.Title, r.URL))
	}
	b.WriteString("\n\nNew treatments should only be started after discussing them with your nephrologist.")
	return clinicalResult(b.String(), citations, SourceWeb), nil
}

func (c *Clinical) fromKnowledgeBase(st *State, message string) (Result, error) {
	query := message
	if p := st.Patient; p != nil {
		query = fmt.Sprintf("%s %s %s", message, p.PrimaryDiagnosis, strings.Join(p.Medications, " "))
	}
	hits := c.kb.Search(query, retrievalTopK)
	if len(hits) == 0 {
		return clinicalResult("I couldn't find guidance on that in the nephrology reference. Please contact your care team with this question.", nil, SourceNone), nil
	}

	var b strings.Builder
	if p := st.Patient; p != nil {
		fmt.Fprintf(&b, "Based on the nephrology reference and your discharge report (%s):\n", p.PrimaryDiagnosis)
	} else {
		b.WriteString("Based on the nephrology reference:\n")
	}
	citations := make([]string, 0, len(hits))
	for _, h := range hits {
		fmt.Fprintf(&b, "\n- %s: %s", h.Document.Title, h.Document.Content)
		citations = append(citations, h.Document.Source)
	}
	if p := st.Patient; p != nil && p.WarningSigns != "" {
		fmt.Fprintf(&b, "\n\nContact your care team right away if you notice: %s.", strings.ToLower(p.WarningSigns))
	}
	return clinicalResult(b.String(), citations, SourceKnowledgeBase), nil
}

func clinicalResult(text string, citations []string, source SourceType) Result {
	if citations == nil {
		citations = []string{}
	}
	return Result{
		Reply:      text + "\n\n" + Disclaimer,
		Agent:      AgentClinical,
		Citations:  citations,
		SourceType: source,
	}
}
