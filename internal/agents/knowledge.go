package agents

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Document is one nephrology reference passage.
type Document struct {
	Title    string   `yaml:"title"`
	Source   string   `yaml:"source"`
	Content  string   `yaml:"content"`
	Keywords []string `yaml:"keywords"`
}

// Hit is a retrieved document with its overlap score.
type Hit struct {
	Document Document
	Score    int
}

// KnowledgeBase ranks reference passages by term overlap with the query.
type KnowledgeBase struct {
	docs  []Document
	terms []map[string]int
}

type knowledgeFile struct {
	Documents []Document `yaml:"documents"`
}

func NewKnowledgeBase(docs []Document) *KnowledgeBase {
	kb := &KnowledgeBase{}
	for _, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		if strings.TrimSpace(d.Source) == "" {
			d.Source = "Nephrology Reference"
		}
		weights := make(map[string]int)
		for _, t := range tokenize(d.Title + " " + d.Content) {
			weights[t] = 1
		}
		for _, k := range d.Keywords {
			for _, t := range tokenize(k) {
				weights[t] = 2
			}
		}
		kb.docs = append(kb.docs, d)
		kb.terms = append(kb.terms, weights)
	}
	return kb
}

// LoadKnowledgeBase reads documents from a YAML file; an empty path yields the built-in set.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return NewKnowledgeBase(BuiltinDocuments()), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	var f knowledgeFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse knowledge base %s: %w", path, err)
	}
	if len(f.Documents) == 0 {
		return nil, fmt.Errorf("knowledge base %s has no documents", path)
	}
	return NewKnowledgeBase(f.Documents), nil
}

func (kb *KnowledgeBase) Len() int { return len(kb.docs) }

// Search returns up to k documents sharing terms with query, best first.
// Ties keep document order.
func (kb *KnowledgeBase) Search(query string, k int) []Hit {
	if k <= 0 {
		k = 3
	}
	seen := make(map[string]bool)
	var hits []Hit
	for i, weights := range kb.terms {
		score := 0
		clear(seen)
		for _, t := range tokenize(query) {
			if seen[t] {
				continue
			}
			seen[t] = true
			score += weights[t]
		}
		if score > 0 {
			hits = append(hits, Hit{Document: kb.docs[i], Score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "about": true, "can": true, "do": true,
	"does": true, "for": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"me": true, "my": true, "of": true, "on": true, "or": true, "should": true, "the": true,
	"to": true, "what": true, "when": true, "with": true, "you": true, "your": true, "have": true,
	"be": true, "this": true, "that": true, "if": true, "am": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

// stem strips a plural "s" so "legs" matches "leg".
func stem(t string) string {
	if len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss") {
		return t[:len(t)-1]
	}
	return t
}

// BuiltinDocuments is the default nephrology reference set.
func BuiltinDocuments() []Document {
	return []Document{
		{
			Title:    "Sodium and fluid management in CKD",
			Source:   "Nephrology Reference: Diet and Nutrition in CKD",
			Content:  "Limit sodium to about 2 grams per day to control blood pressure and reduce fluid retention. Avoid processed foods, canned soups and added salt. Follow the fluid limit set by your care team, usually 1.5 to 2 liters per day when swelling is present.",
			Keywords: []string{"salt", "sodium", "diet", "food", "fluid", "drink", "water"},
		},
		{
			Title:    "Potassium and phosphorus",
			Source:   "Nephrology Reference: Diet and Nutrition in CKD",
			Content:  "Damaged kidneys may not remove potassium and phosphorus well. High potassium foods include bananas, oranges, potatoes and tomatoes. Phosphate binders such as calcium carbonate are taken with meals.",
			Keywords: []string{"potassium", "phosphorus", "banana", "diet", "food", "binder", "calcium"},
		},
		{
			Title:    "Edema and fluid overload",
			Source:   "Nephrology Reference: Fluid Overload and Edema",
			Content:  "Swelling in the legs, ankles or around the eyes can signal fluid overload. Weigh yourself every morning. A gain of more than 1 kg in a day or 2 kg in a week should be reported. Diuretics such as furosemide help remove excess fluid.",
			Keywords: []string{"swelling", "swollen", "edema", "leg", "ankle", "weight", "furosemide", "diuretic"},
		},
		{
			Title:    "Blood pressure control",
			Source:   "Nephrology Reference: Hypertension in Kidney Disease",
			Content:  "Keeping blood pressure below 130/80 slows kidney damage. ACE inhibitors such as lisinopril protect the kidneys but can raise potassium. Check your blood pressure daily and record the readings for your follow-up visit.",
			Keywords: []string{"blood", "pressure", "hypertension", "lisinopril", "ace", "dizzy", "headache"},
		},
		{
			Title:    "Medication safety for kidney patients",
			Source:   "Nephrology Reference: Drug Dosing in CKD",
			Content:  "Avoid NSAIDs such as ibuprofen and naproxen, which can worsen kidney function. Many drugs need dose adjustment in CKD. Do not start herbal supplements without checking with your nephrologist. Take medications at the same time every day.",
			Keywords: []string{"medication", "medicine", "pill", "dose", "ibuprofen", "painkiller", "supplement", "nsaid", "missed"},
		},
		{
			Title:    "Warning signs after discharge",
			Source:   "Nephrology Reference: Post-Discharge Monitoring",
			Content:  "Seek urgent care for shortness of breath, chest pain, confusion, very little or no urine output, or rapid weight gain. Nausea, itching and fatigue may indicate worsening kidney function and should be reported to your care team.",
			Keywords: []string{"breath", "chest", "pain", "urine", "confusion", "nausea", "fatigue", "tired", "emergency", "symptom"},
		},
		{
			Title:    "Recovery after acute kidney injury",
			Source:   "Nephrology Reference: Acute Kidney Injury",
			Content:  "Kidney function often recovers over weeks after an acute injury. Repeat blood tests track creatinine. Stay hydrated within your limits and avoid contrast dye and nephrotoxic drugs until cleared by your doctor.",
			Keywords: []string{"aki", "acute", "injury", "recovery", "creatinine", "hydrated"},
		},
		{
			Title:    "Understanding CKD stages",
			Source:   "Nephrology Reference: Staging Chronic Kidney Disease",
			Content:  "CKD is staged by estimated glomerular filtration rate. Stage 3 means moderately reduced function (eGFR 30 to 59). Progression can be slowed with blood pressure control, diabetes management and diet.",
			Keywords: []string{"ckd", "stage", "egfr", "chronic", "kidney", "progression"},
		},
	}
}
