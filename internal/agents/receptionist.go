package agents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const handoffText = "This sounds like a medical concern. Let me connect you with our Clinical AI Agent."

// Receptionist identifies the patient and decides when to hand off to the clinical agent.
type Receptionist struct {
	patients PatientDirectory
}

func NewReceptionist(patients PatientDirectory) *Receptionist {
	return &Receptionist{patients: patients}
}

// Respond answers one turn. When the patient raises a medical topic it sets
// st.HandoffToClinical and returns the handoff notice.
func (r *Receptionist) Respond(ctx context.Context, st *State, message string) (Result, error) {
	if st.Patient == nil {
		return r.identify(ctx, st, message)
	}
	if mentionsMedicalTopic(message) {
		st.HandoffToClinical = true
		return receptionistResult(handoffText), nil
	}
	return receptionistResult(fmt.Sprintf(
		"Thanks, %s. If you have any questions about your symptoms, medications, or diet, just ask and I'll connect you with our clinical team. Your follow-up: %s.",
		firstName(st.UserName), st.Patient.FollowUp,
	)), nil
}

func (r *Receptionist) identify(ctx context.Context, st *State, message string) (Result, error) {
	name := ExtractName(message)
	if name == "" {
		return receptionistResult("To find your discharge report, could you please tell me your full name?"), nil
	}
	p, err := r.patients.Lookup(ctx, name)
	if errors.Is(err, ErrPatientNotFound) {
		return receptionistResult(fmt.Sprintf(
			"I couldn't find a discharge report for %s. Could you double-check the spelling of your full name?", name,
		)), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("identify patient: %w", err)
	}

	st.Patient = &p
	st.UserName = p.Name
	return receptionistResult(fmt.Sprintf(
		"Hi %s! I found your discharge report from %s for %s. How are you feeling today? Are you following your medication schedule?",
		firstName(p.Name), p.DischargeDate.Format("January 2, 2006"), p.PrimaryDiagnosis,
	)), nil
}

func receptionistResult(text string) Result {
	return Result{Reply: text, Agent: AgentReceptionist, SourceType: SourceNone, Citations: []string{}}
}

var (
	introPattern = regexp.MustCompile(`(?i)\b(?:my name is|my name's|i am|i'm|im|this is|call me)\s+(.+)`)
	greetPattern = regexp.MustCompile(`(?i)^\s*(?:hi|hello|hey|good (?:morning|afternoon|evening))\b[\s,!.]*`)
	clauseEnd    = regexp.MustCompile(`[,!?;:\n]`)
)

var nameStopwords = map[string]bool{
	"and": true, "but": true, "from": true, "here": true, "i": true, "my": true, "with": true,
	"the": true, "calling": true, "feeling": true, "not": true, "so": true, "just": true,
	"was": true, "recently": true, "discharged": true, "a": true, "your": true, "patient": true,
	"having": true, "worried": true, "concerned": true, "sorry": true, "still": true, "back": true,
	"looking": true, "trying": true, "going": true, "in": true, "on": true, "at": true,
}

var nonNames = map[string]bool{
	"yes": true, "no": true, "ok": true, "okay": true, "thanks": true, "thank": true, "fine": true,
	"good": true, "great": true, "help": true, "please": true, "sure": true, "what": true, "how": true,
	"why": true, "when": true, "where": true, "who": true, "can": true, "could": true, "would": true,
	"is": true, "are": true, "do": true, "does": true, "hi": true, "hello": true, "hey": true,
}

// ExtractName pulls a patient name out of an introduction such as "Hi, I'm John Smith"
// or a bare "John Smith". It returns "" when no name is recognizable.
func ExtractName(message string) string {
	if m := introPattern.FindStringSubmatch(message); m != nil {
		return nameWords(m[1], 1)
	}
	rest := greetPattern.ReplaceAllString(message, "")
	rest = strings.TrimSpace(clauseEnd.Split(rest, 2)[0])
	words := strings.Fields(rest)
	if len(words) < 2 || len(words) > 4 {
		return ""
	}
	for _, w := range words {
		if nonNames[strings.ToLower(w)] || !isNameWord(w) {
			return ""
		}
	}
	return nameWords(rest, 2)
}

func nameWords(s string, minWords int) string {
	s = clauseEnd.Split(s, 2)[0]
	var out []string
	for _, w := range strings.Fields(s) {
		if len(out) == 4 || nameStopwords[strings.ToLower(w)] || !isNameWord(w) {
			break
		}
		out = append(out, titleCase(w))
	}
	if len(out) < minWords {
		return ""
	}
	return strings.Join(out, " ")
}

func isNameWord(w string) bool {
	hasLetter := false
	for _, r := range w {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case r == '-' || r == '\'' || r == '.':
		default:
			return false
		}
	}
	return hasLetter
}

func titleCase(w string) string {
	w = strings.TrimSuffix(w, ".")
	rs := []rune(strings.ToLower(w))
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return "there"
}

var medicalTopic = regexp.MustCompile(`(?i)\b(symptoms?|pain|hurts?|ache|swell\w*|swollen|edema|medications?|medicines?|meds|pills?|dos(e|es|age)|side effects?|diet|eat|eating|food|salt|sodium|potassium|phosphorus|fluids?|drink|kidneys?|dialysis|blood pressure|breath\w*|urin\w*|pee|tired|fatigue|nausea|nauseous|dizzy|dizziness|itch\w*|weight|research|studies|study|drugs?|treatments?|ckd|creatinine)\b`)

func mentionsMedicalTopic(message string) bool {
	return medicalTopic.MatchString(message)
}
