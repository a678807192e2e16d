package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingres_back/knowledge"
	"ingres_back/locations"
	"ingres_back/websearch"
)

type stubStructured struct {
	facts     []locations.Fact
	ambiguous bool
	err       error
	calls     int
}

func (s *stubStructured) AnswerQuestion(ctx context.Context, question, hint string) ([]locations.Fact, bool, error) {
	s.calls++
	return s.facts, s.ambiguous, s.err
}

type stubSemantic struct {
	hits  []knowledge.SearchResult
	err   error
	calls int
}

func (s *stubSemantic) Search(ctx context.Context, query string, filters knowledge.SearchFilters, limit int) ([]knowledge.SearchResult, error) {
	s.calls++
	return s.hits, s.err
}

type stubWeb struct {
	enabled bool
	results []websearch.Result
	err     error
	calls   int
}

func (s *stubWeb) Enabled() bool { return s.enabled }

func (s *stubWeb) Search(ctx context.Context, query string) ([]websearch.Result, error) {
	s.calls++
	return s.results, s.err
}

type stubRenderer struct {
	text  string
	err   error
	calls int
}

func (s *stubRenderer) Render(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.text, s.err
}

func bhopalFact() locations.Fact {
	return locations.Fact{
		LocationID:   2,
		LocationName: "Bhopal",
		Level:        locations.LevelDistrict,
		MetricName:   locations.MetricStageOfExtraction,
		Value:        72,
		Unit:         "%",
		Year:         2023,
		Status:       locations.StatusSemiCritical,
	}
}

func semanticHit(score float64) knowledge.SearchResult {
	return knowledge.SearchResult{
		DocumentID: 5,
		Title:      "Recharge handbook",
		Seq:        1,
		Text:       "Percolation tanks and check dams raise local recharge.",
		Score:      score,
	}
}

func TestComposeStructuredHitStopsAtTierOne(t *testing.T) {
	structured := &stubStructured{facts: []locations.Fact{bhopalFact()}}
	semantic := &stubSemantic{}
	web := &stubWeb{enabled: true}
	renderer := &stubRenderer{text: "Bhopal is at 72% extraction, Semi-Critical."}

	c := NewComposer(structured, semantic, web, renderer)
	answer := c.Compose(context.Background(), ComposeRequest{Question: "stage of extraction in Bhopal"})

	assert.Equal(t, 1, structured.calls)
	assert.Zero(t, semantic.calls, "an exact structured hit must not trigger document search")
	assert.Zero(t, web.calls)
	assert.Equal(t, 1, renderer.calls)
	assert.True(t, answer.Sources.StructuredUsed)
	assert.False(t, answer.Fallback)
	assert.Contains(t, answer.Text, "Semi-Critical")
	assert.Contains(t, answer.Text, "Sources: groundwater assessment database")
}

func TestComposeQualitativeQuestionRunsSemanticToo(t *testing.T) {
	structured := &stubStructured{facts: []locations.Fact{bhopalFact()}}
	semantic := &stubSemantic{hits: []knowledge.SearchResult{semanticHit(0.9)}}
	web := &stubWeb{enabled: true}
	renderer := &stubRenderer{text: "Answer with context."}

	c := NewComposer(structured, semantic, web, renderer)
	answer := c.Compose(context.Background(), ComposeRequest{
		Question: "Why is extraction so high in Bhopal and which schemes can help?",
	})

	assert.Equal(t, 1, semantic.calls)
	assert.Zero(t, web.calls)
	assert.True(t, answer.Sources.StructuredUsed)
	assert.Equal(t, 1, answer.Sources.SemanticCount)
}

func TestComposeWebFallbackWhenNothingFound(t *testing.T) {
	structured := &stubStructured{err: locations.ErrNoLocation}
	semantic := &stubSemantic{}
	web := &stubWeb{enabled: true, results: []websearch.Result{
		{Title: "CGWB report", Snippet: "National groundwater overview.", URL: "https://example.org/report"},
	}}
	renderer := &stubRenderer{text: "Based on web results..."}

	c := NewComposer(structured, semantic, web, renderer)
	answer := c.Compose(context.Background(), ComposeRequest{Question: "national groundwater trends"})

	assert.Equal(t, 1, web.calls)
	assert.True(t, answer.Sources.WebUsed)
	assert.Contains(t, answer.Text, "web search (unverified)")
}

func TestComposeWebSkippedWhenSemanticSufficient(t *testing.T) {
	structured := &stubStructured{err: locations.ErrNoLocation}
	semantic := &stubSemantic{hits: []knowledge.SearchResult{semanticHit(0.8), semanticHit(0.6)}}
	web := &stubWeb{enabled: true}
	renderer := &stubRenderer{text: "Answer from documents."}

	c := NewComposer(structured, semantic, web, renderer)
	answer := c.Compose(context.Background(), ComposeRequest{Question: "how to improve recharge"})

	assert.Zero(t, web.calls, "two usable document chunks must suppress the web tier")
	assert.False(t, answer.Sources.WebUsed)
	assert.Equal(t, 2, answer.Sources.SemanticCount)
}

func TestComposeWebTriggeredByLowScores(t *testing.T) {
	structured := &stubStructured{err: locations.ErrNoRecord}
	semantic := &stubSemantic{hits: []knowledge.SearchResult{semanticHit(0.1)}}
	web := &stubWeb{enabled: true}
	renderer := &stubRenderer{text: "ok"}

	c := NewComposer(structured, semantic, web, renderer)
	c.Compose(context.Background(), ComposeRequest{Question: "obscure aquifer question"})

	assert.Equal(t, 1, web.calls, "a single low-score chunk is not usable evidence")
}

func TestComposeRendererFailureUsesStaticFallback(t *testing.T) {
	structured := &stubStructured{facts: []locations.Fact{bhopalFact()}}
	renderer := &stubRenderer{err: errors.New("provider down")}

	c := NewComposer(structured, &stubSemantic{}, &stubWeb{}, renderer)
	answer := c.Compose(context.Background(), ComposeRequest{Question: "stage of extraction in Bhopal"})

	assert.True(t, answer.Fallback)
	assert.Contains(t, answer.Text, "72")
	assert.Contains(t, answer.Text, "Semi-Critical")
}

func TestComposeEveryTierFailingStillAnswers(t *testing.T) {
	structured := &stubStructured{err: errors.New("db down")}
	semantic := &stubSemantic{err: errors.New("qdrant down")}
	web := &stubWeb{enabled: true, err: errors.New("provider down")}
	renderer := &stubRenderer{err: errors.New("llm down")}

	c := NewComposer(structured, semantic, web, renderer)
	answer := c.Compose(context.Background(), ComposeRequest{Question: "groundwater in Indore"})

	require.NotNil(t, answer)
	assert.True(t, answer.Fallback)
	assert.Contains(t, answer.Text, "could not find reliable groundwater data")
}

func TestComposeAmbiguousStructuredStillRunsSemantic(t *testing.T) {
	second := bhopalFact()
	second.LocationID = 13
	second.LocationName = "Aurangabad"
	structured := &stubStructured{facts: []locations.Fact{bhopalFact(), second}, ambiguous: true}
	semantic := &stubSemantic{hits: []knowledge.SearchResult{semanticHit(0.9)}}
	web := &stubWeb{enabled: true}
	renderer := &stubRenderer{text: "Two districts match."}

	c := NewComposer(structured, semantic, web, renderer)
	answer := c.Compose(context.Background(), ComposeRequest{Question: "extraction in Aurangabad 2023"})

	assert.Equal(t, 1, semantic.calls, "ambiguous candidates alone must keep document search running")
	assert.Zero(t, web.calls)
	assert.True(t, answer.Ambiguous)
	assert.Equal(t, 1, answer.Sources.SemanticCount)
}

func TestComposeAmbiguousLocationsProduceOneItemPerCandidate(t *testing.T) {
	second := bhopalFact()
	second.LocationID = 13
	second.LocationName = "Aurangabad"
	structured := &stubStructured{facts: []locations.Fact{bhopalFact(), second}, ambiguous: true}
	renderer := &stubRenderer{text: "There are two matches."}

	c := NewComposer(structured, &stubSemantic{}, &stubWeb{}, renderer)
	answer := c.Compose(context.Background(), ComposeRequest{Question: "extraction in Aurangabad"})

	assert.True(t, answer.Ambiguous)
	structuredItems := 0
	for _, item := range answer.Evidence {
		if item.Tier == TierStructured {
			structuredItems++
		}
	}
	assert.Equal(t, 2, structuredItems)
}

func TestComposeEmptyQuestion(t *testing.T) {
	c := NewComposer(&stubStructured{}, &stubSemantic{}, &stubWeb{}, &stubRenderer{})
	answer := c.Compose(context.Background(), ComposeRequest{Question: "   "})

	assert.True(t, answer.Fallback)
	assert.True(t, strings.Contains(answer.Text, "could not find"))
}

func TestIsQualitative(t *testing.T) {
	assert.True(t, IsQualitative("Why is the water table falling?"))
	assert.True(t, IsQualitative("Which yojana covers drip irrigation?"))
	assert.True(t, IsQualitative("Which schemes can help here?"))
	assert.False(t, IsQualitative("stage of extraction in Bhopal 2023"))
}

func TestIsQualitativeMatchesWholeWordsOnly(t *testing.T) {
	assert.False(t, IsQualitative("data showing extraction in Howrah"))
	assert.False(t, IsQualitative("extraction rose because of the drought"))
	assert.False(t, IsQualitative("rainfall measuresment record"))
	assert.True(t, IsQualitative("how bad is it"))
	assert.True(t, IsQualitative("what is the cause"))
}
