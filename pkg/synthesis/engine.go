// Package synthesis turns retrieval results into a citation-backed answer.
// The model only ever sees retrieved passages; when the evidence is thin it
// says so instead of guessing, and when the model is down the caller gets
// ErrSynthesisUnavailable rather than a fabricated answer.
package synthesis

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"bionexus/internal/util"
	"bionexus/pkg/ai"
	"bionexus/pkg/common"
	"bionexus/pkg/logger"
	"bionexus/pkg/retrieval"
	"bionexus/pkg/store"
)

// Searcher produces ranked evidence passages for a question.
type Searcher interface {
	Search(ctx context.Context, query string, filter store.SearchFilter, topK int) ([]retrieval.Result, error)
}

// Citation ties one numbered marker in the answer back to its passage.
type Citation struct {
	Index         int     `json:"index"`
	PageID        string  `json:"page_id"`
	PublicationID string  `json:"pub_id"`
	Title         string  `json:"title,omitempty"`
	Year          int     `json:"year,omitempty"`
	PageNumber    int     `json:"page_number"`
	Snippet       string  `json:"snippet,omitempty"`
	Score         float64 `json:"score"`
}

// Candidate names a document worth reading when the evidence was too thin
// to answer.
type Candidate struct {
	PublicationID string  `json:"pub_id"`
	Title         string  `json:"title,omitempty"`
	Year          int     `json:"year,omitempty"`
	Score         float64 `json:"score"`
}

// Answer is the synthesized response.
type Answer struct {
	Question             string      `json:"question"`
	Text                 string      `json:"answer"`
	Citations            []Citation  `json:"citations"`
	Confidence           float64     `json:"confidence"`
	InsufficientEvidence bool        `json:"insufficient_evidence"`
	Candidates           []Candidate `json:"candidates,omitempty"`
}

// Options tunes one Answer call.
type Options struct {
	TopK   int
	Filter store.SearchFilter
	// ContextTokens overrides the engine's evidence token budget when > 0.
	ContextTokens int
	// IncludeCitations drops the citation list from the answer when set to
	// false. Confidence is still computed from the cited passages.
	IncludeCitations *bool
}

// lowConfidenceCeiling caps confidence whenever the evidence was judged
// insufficient, regardless of how confident the cited passages look.
const lowConfidenceCeiling = 0.3

// Engine assembles evidence within a token budget and asks the model for a
// cited summary.
type Engine struct {
	Search Searcher
	AI     ai.Client

	// ContextTokens bounds the total evidence passed to the model.
	ContextTokens int
	// SimilarityThreshold is the minimum retrieval score for a passage to
	// count as evidence.
	SimilarityThreshold float64
	// MinEvidencePages is how many passages must pass the threshold before
	// the engine attempts an answer.
	MinEvidencePages int
}

// NewEngine creates an Engine with env-tunable budget and thresholds.
func NewEngine(search Searcher, client ai.Client) *Engine {
	return &Engine{
		Search:              search,
		AI:                  client,
		ContextTokens:       util.GetEnvInt("SYNTHESIS_CONTEXT_TOKENS", 6000),
		SimilarityThreshold: envFloat("SYNTHESIS_SIMILARITY_THRESHOLD", 0.35),
		MinEvidencePages:    util.GetEnvInt("SYNTHESIS_MIN_EVIDENCE_PAGES", 2),
	}
}

func envFloat(key string, defaultValue float64) float64 {
	if util.GetEnv(key) == "" {
		return defaultValue
	}
	return util.GetEnvNumeric(key, 0)
}

// Answer retrieves evidence for the question and synthesizes a cited
// response. Questions with too little supporting evidence return an
// insufficient-evidence answer listing candidate documents instead of a
// guess.
func (e *Engine) Answer(ctx context.Context, question string, opts Options) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, common.Validation("question", "missing")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 6
	}

	results, err := e.Search.Search(ctx, question, opts.Filter, topK)
	if err != nil {
		return Answer{}, err
	}

	evidence := make([]retrieval.Result, 0, len(results))
	for _, res := range results {
		if res.Score >= e.SimilarityThreshold && strings.TrimSpace(res.Text) != "" {
			evidence = append(evidence, res)
		}
	}
	if len(evidence) < e.MinEvidencePages {
		logger.Info("[Synthesis] insufficient evidence",
			"question", question, "passing", len(evidence), "required", e.MinEvidencePages)
		return insufficientAnswer(question, results), nil
	}

	budget := e.ContextTokens
	if opts.ContextTokens > 0 {
		budget = opts.ContextTokens
	}
	passages := e.budgetPassages(evidence, budget)
	prompt := buildPrompt(question, passages)

	text, err := e.AI.GenerateCompletion(ctx, prompt, ai.WithSystemPrompts(ai.SynthesisSystemPrompt))
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", common.ErrSynthesisUnavailable, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{}, fmt.Errorf("%w: empty model response", common.ErrSynthesisUnavailable)
	}

	answer := Answer{Question: question, Text: text}
	citations := parseCitations(text, passages)
	answer.Confidence = citedConfidence(citations)
	if opts.IncludeCitations == nil || *opts.IncludeCitations {
		answer.Citations = citations
	}

	if modelSignalsInsufficient(text) {
		answer.InsufficientEvidence = true
		answer.Candidates = candidates(results)
		if answer.Confidence > lowConfidenceCeiling {
			answer.Confidence = lowConfidenceCeiling
		}
	}
	return answer, nil
}

// budgetPassages keeps passages in rank order until the token budget is
// spent. The first passage is always kept, truncated if it alone exceeds
// the budget.
func (e *Engine) budgetPassages(evidence []retrieval.Result, budget int) []retrieval.Result {
	if budget <= 0 {
		budget = 6000
	}
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		// Without an encoder fall back to a crude character budget.
		return charBudget(evidence, budget*4)
	}

	kept := make([]retrieval.Result, 0, len(evidence))
	used := 0
	for _, res := range evidence {
		tokens := enc.Encode(res.Text, nil, nil)
		if len(kept) == 0 && len(tokens) > budget {
			res.Text = enc.Decode(tokens[:budget])
			kept = append(kept, res)
			break
		}
		if used+len(tokens) > budget {
			break
		}
		used += len(tokens)
		kept = append(kept, res)
	}
	return kept
}

func charBudget(evidence []retrieval.Result, budget int) []retrieval.Result {
	kept := make([]retrieval.Result, 0, len(evidence))
	used := 0
	for _, res := range evidence {
		if len(kept) == 0 && len(res.Text) > budget {
			res.Text = res.Text[:budget]
			kept = append(kept, res)
			break
		}
		if used+len(res.Text) > budget {
			break
		}
		used += len(res.Text)
		kept = append(kept, res)
	}
	return kept
}

func buildPrompt(question string, passages []retrieval.Result) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nEvidence passages:\n")
	for i, res := range passages {
		fmt.Fprintf(&b, "\n[%d] %s (%s, page %d", i+1, res.Title, res.PublicationID, res.PageNumber)
		if res.Year > 0 {
			fmt.Fprintf(&b, ", %d", res.Year)
		}
		b.WriteString("):\n")
		b.WriteString(res.Text)
		b.WriteString("\n")
	}
	return b.String()
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// parseCitations maps the [n] markers in the answer back to the passages
// that were shown to the model. Markers outside the passage range are
// dropped.
func parseCitations(text string, passages []retrieval.Result) []Citation {
	seen := make(map[int]struct{})
	out := make([]Citation, 0, len(passages))
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(passages) {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		res := passages[n-1]
		out = append(out, Citation{
			Index:         n,
			PageID:        res.PageID,
			PublicationID: res.PublicationID,
			Title:         res.Title,
			Year:          res.Year,
			PageNumber:    res.PageNumber,
			Snippet:       res.Snippet,
			Score:         res.Score,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// citedConfidence is the mean score of the cited passages, zero when
// nothing was cited.
func citedConfidence(citations []Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	var sum float64
	for _, c := range citations {
		sum += c.Score
	}
	conf := sum / float64(len(citations))
	if conf > 1 {
		conf = 1
	}
	return conf
}

func modelSignalsInsufficient(text string) bool {
	return strings.Contains(strings.ToLower(text), "insufficient evidence")
}

// insufficientAnswer is returned without a model call when too few
// passages pass the similarity threshold.
func insufficientAnswer(question string, results []retrieval.Result) Answer {
	return Answer{
		Question:             question,
		Text:                 "Insufficient evidence",
		InsufficientEvidence: true,
		Candidates:           candidates(results),
	}
}

// candidates lists the distinct publications behind the retrieval results,
// best score first.
func candidates(results []retrieval.Result) []Candidate {
	byPub := make(map[string]Candidate)
	for _, res := range results {
		if existing, ok := byPub[res.PublicationID]; ok && existing.Score >= res.Score {
			continue
		}
		byPub[res.PublicationID] = Candidate{
			PublicationID: res.PublicationID,
			Title:         res.Title,
			Year:          res.Year,
			Score:         res.Score,
		}
	}
	out := make([]Candidate, 0, len(byPub))
	for _, c := range byPub {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PublicationID < out[j].PublicationID
	})
	return out
}
