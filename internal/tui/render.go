package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/ent0n29/carecompanion/internal/chat"
)

// badge returns the source label shown next to the agent header.
// Reference material is only labeled on clinical answers.
func badge(t chat.Turn) string {
	switch {
	case t.SourceType == chat.SourceWeb:
		return "Web"
	case t.SourceType == chat.SourceKnowledgeBase && t.Agent == chat.AgentClinical:
		return "Reference"
	default:
		return ""
	}
}

func renderTranscript(turns []chat.Turn, st styles, md *glamour.TermRenderer, width int) string {
	blocks := make([]string, 0, len(turns))
	for _, t := range turns {
		blocks = append(blocks, renderTurn(t, st, md, width))
	}
	return strings.Join(blocks, "\n\n")
}

func renderTurn(t chat.Turn, st styles, md *glamour.TermRenderer, width int) string {
	var b strings.Builder
	if width > 0 {
		st.User = st.User.Width(width)
		st.Body = st.Body.Width(width)
		st.Failure = st.Failure.Width(width)
	}
	if !t.IsAssistant() {
		b.WriteString(st.UserLabel.Render("You"))
		b.WriteString("\n")
		b.WriteString(st.User.Render(t.Content))
		return b.String()
	}

	header := t.AgentLabel()
	switch {
	case header == "" && t.Content == chat.ApologyText:
		b.WriteString(st.Failure.Render(t.Content))
		return b.String()
	case header == "":
		header = "Assistant"
	}
	headerStyle := st.Receptionist
	if t.Agent == chat.AgentClinical {
		headerStyle = st.Clinical
	}
	b.WriteString(headerStyle.Render(header))
	if label := badge(t); label != "" {
		b.WriteString(" ")
		b.WriteString(st.Badge.Render("[" + label + "]"))
	}
	b.WriteString("\n")
	b.WriteString(renderBody(t.Content, st, md))

	if len(t.Citations) > 0 {
		b.WriteString("\n")
		b.WriteString(st.SourcesTitle.Render("Sources:"))
		for _, c := range t.Citations {
			b.WriteString("\n")
			b.WriteString(st.Source.Render("• " + c))
		}
	}
	return b.String()
}

func renderBody(content string, st styles, md *glamour.TermRenderer) string {
	if md != nil {
		if out, err := md.Render(content); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return st.Body.Render(content)
}
