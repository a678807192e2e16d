package answer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"ingres_back/knowledge"
	"ingres_back/locations"
	"ingres_back/websearch"
)

// Evidence tiers, in trust order.
const (
	TierStructured = "structured"
	TierSemantic   = "semantic"
	TierWeb        = "web"
)

const (
	defaultMinSemanticScore = 0.30
	defaultMinSemanticHits  = 2
	defaultSemanticLimit    = 5
)

const fallbackApology = "I could not find reliable groundwater data to answer that right now. " +
	"Please try again with a specific state, district, or assessment unit name."

// StructuredSource resolves a question against the assessment database.
type StructuredSource interface {
	AnswerQuestion(ctx context.Context, question, hint string) ([]locations.Fact, bool, error)
}

// SemanticSource searches the uploaded document corpus.
type SemanticSource interface {
	Search(ctx context.Context, query string, filters knowledge.SearchFilters, limit int) ([]knowledge.SearchResult, error)
}

// WebSource is the last-resort external search tier.
type WebSource interface {
	Enabled() bool
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// EvidenceItem is one piece of evidence handed to the renderer, tagged with
// the tier that produced it.
type EvidenceItem struct {
	Tier   string  `json:"tier"`
	Title  string  `json:"title,omitempty"`
	Body   string  `json:"body"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// SourcesSummary records which tiers contributed to an answer.
type SourcesSummary struct {
	StructuredUsed bool `json:"structured_used"`
	SemanticCount  int  `json:"semantic_count"`
	WebUsed        bool `json:"web_used"`
}

// Answer is the composed result. Fallback marks answers produced by the
// static template after the renderer failed.
type Answer struct {
	Text      string         `json:"text"`
	Evidence  []EvidenceItem `json:"evidence,omitempty"`
	Sources   SourcesSummary `json:"sources"`
	Ambiguous bool           `json:"ambiguous,omitempty"`
	Fallback  bool           `json:"fallback,omitempty"`
}

type ComposeRequest struct {
	Question string
	Language string
	History  []Message
}

// Composer walks the evidence tiers in fixed order: structured lookup first,
// then document search, then web fallback, then rendering. Tier failures are
// logged and swallowed; Compose always produces an answer.
type Composer struct {
	structured StructuredSource
	semantic   SemanticSource
	web        WebSource
	renderer   Renderer

	minSemanticScore float64
	minSemanticHits  int
	semanticLimit    int
}

func NewComposer(structured StructuredSource, semantic SemanticSource, web WebSource, renderer Renderer) *Composer {
	return &Composer{
		structured:       structured,
		semantic:         semantic,
		web:              web,
		renderer:         renderer,
		minSemanticScore: defaultMinSemanticScore,
		minSemanticHits:  defaultMinSemanticHits,
		semanticLimit:    defaultSemanticLimit,
	}
}

func (c *Composer) Compose(ctx context.Context, req ComposeRequest) *Answer {
	question := strings.TrimSpace(req.Question)
	answer := &Answer{}
	if question == "" {
		answer.Text = fallbackApology
		answer.Fallback = true
		return answer
	}

	evidence := make([]EvidenceItem, 0, 8)

	// Tier 1: structured lookup.
	var facts []locations.Fact
	if c.structured != nil {
		found, ambiguous, err := c.structured.AnswerQuestion(ctx, question, lastUserMessage(req.History))
		switch {
		case err == nil:
			facts = found
			answer.Ambiguous = ambiguous
		case errors.Is(err, locations.ErrNoLocation), errors.Is(err, locations.ErrNoRecord):
			// Nothing structured to say; the next tier takes over.
		default:
			log.Printf("answer: structured lookup failed: %v", err)
		}
	}
	for _, fact := range facts {
		evidence = append(evidence, factEvidence(fact))
	}
	answer.Sources.StructuredUsed = len(facts) > 0

	// Tier 2: document search. An exact structured hit ends the search unless
	// the candidates are ambiguous or the question also asks for qualitative
	// context.
	runSemantic := len(facts) == 0 || answer.Ambiguous || IsQualitative(question)
	var semanticHits []knowledge.SearchResult
	if runSemantic && c.semantic != nil {
		hits, err := c.semantic.Search(ctx, question, knowledge.SearchFilters{}, c.semanticLimit)
		if err != nil {
			log.Printf("answer: document search failed: %v", err)
		} else {
			semanticHits = hits
		}
	}
	usable := 0
	for _, hit := range semanticHits {
		if hit.Score >= c.minSemanticScore {
			usable++
		}
		evidence = append(evidence, EvidenceItem{
			Tier:   TierSemantic,
			Title:  hit.Title,
			Body:   excerpt(hit.Text, 400),
			Source: fmt.Sprintf("document %d, part %d", hit.DocumentID, hit.Seq),
			Score:  hit.Score,
		})
	}
	answer.Sources.SemanticCount = len(semanticHits)

	// Tier 3: web fallback, only when the trusted tiers came up short.
	if len(facts) == 0 && usable < c.minSemanticHits && c.web != nil && c.web.Enabled() {
		results, err := c.web.Search(ctx, question)
		if err != nil {
			log.Printf("answer: web search failed: %v", err)
		}
		for _, result := range results {
			evidence = append(evidence, EvidenceItem{
				Tier:   TierWeb,
				Title:  result.Title,
				Body:   result.Snippet,
				Source: result.URL,
			})
		}
		answer.Sources.WebUsed = len(results) > 0
	}

	answer.Evidence = evidence

	// Final tier: language rendering, with a deterministic static fallback.
	rendered := ""
	if c.renderer != nil {
		prompt := BuildPrompt(question, req.Language, evidence, req.History)
		text, err := c.renderer.Render(ctx, prompt)
		if err != nil {
			log.Printf("answer: render failed, using static fallback: %v", err)
		} else {
			rendered = text
		}
	}
	if rendered == "" {
		rendered = staticAnswer(facts, semanticHits)
		answer.Fallback = true
	}

	answer.Text = rendered + "\n\n" + sourcesFooter(answer.Sources)
	return answer
}

var qualitativePattern = regexp.MustCompile(`(?i)\b(why|how|recommend|suggest|advice|tips|schemes?|yojana|improve|conserve|conservation|should|explain|causes?|reasons?|help|measures)\b`)

// IsQualitative reports whether a question asks for explanation or advice
// rather than a single number. Keywords match whole words only, so "showing"
// or "because" do not count.
func IsQualitative(question string) bool {
	return qualitativePattern.MatchString(question)
}

func factEvidence(fact locations.Fact) EvidenceItem {
	return EvidenceItem{
		Tier:   TierStructured,
		Title:  fact.LocationName,
		Body:   factSentence(fact),
		Source: "assessment database",
	}
}

func factSentence(fact locations.Fact) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%s in %s (%s), %d: %s",
		metricLabel(fact.MetricName), fact.LocationName, fact.Level, fact.Year,
		formatValue(fact.Value)))
	if fact.Unit != "" {
		builder.WriteString(fact.Unit)
	}
	if fact.Status != "" {
		builder.WriteString(" — classified " + fact.Status)
	}
	if fact.Aggregate {
		builder.WriteString(" (nearest available figure, from a wider assessment area)")
	}
	builder.WriteString(".")
	return builder.String()
}

func metricLabel(metric string) string {
	switch metric {
	case locations.MetricStageOfExtraction:
		return "Stage of groundwater extraction"
	case locations.MetricAnnualRecharge:
		return "Annual groundwater recharge"
	case locations.MetricRainfall:
		return "Rainfall"
	default:
		return strings.ReplaceAll(metric, "_", " ")
	}
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// staticAnswer is the deterministic text used when the renderer is
// unavailable. It restates the strongest evidence verbatim.
func staticAnswer(facts []locations.Fact, hits []knowledge.SearchResult) string {
	if len(facts) > 0 {
		sentences := make([]string, 0, len(facts))
		for _, fact := range facts {
			sentences = append(sentences, factSentence(fact))
		}
		return strings.Join(sentences, "\n")
	}
	if len(hits) > 0 {
		return fmt.Sprintf("From the uploaded document %q:\n%s",
			hits[0].Title, excerpt(hits[0].Text, 400))
	}
	return fallbackApology
}

func sourcesFooter(summary SourcesSummary) string {
	parts := make([]string, 0, 3)
	if summary.StructuredUsed {
		parts = append(parts, "groundwater assessment database")
	}
	if summary.SemanticCount > 0 {
		noun := "excerpts"
		if summary.SemanticCount == 1 {
			noun = "excerpt"
		}
		parts = append(parts, fmt.Sprintf("uploaded documents (%d %s)", summary.SemanticCount, noun))
	}
	if summary.WebUsed {
		parts = append(parts, "web search (unverified)")
	}
	if len(parts) == 0 {
		return "Sources: none available."
	}
	return "Sources: " + strings.Join(parts, "; ") + "."
}

func excerpt(text string, maxRunes int) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= maxRunes {
		return trimmed
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

func lastUserMessage(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}
