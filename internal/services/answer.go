package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/internal/fallback"
	"github.com/casedesk/smechat/internal/models"
	"github.com/casedesk/smechat/pkg/logger"
	"gorm.io/gorm"
)

// FallbackAnswer is sent whenever the guidance does not cover a question.
const FallbackAnswer = "I am not able to confirm based on the current guidance."

const answerSystemPrompt = `You answer staff questions using only the guidance excerpts provided.
Quote figures and limits exactly as written. Keep the answer under 120 words.
If the excerpts do not answer the question, reply with exactly this sentence and nothing else:
` + FallbackAnswer

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "can": true, "how": true,
	"what": true, "when": true, "who": true, "why": true, "with": true, "does": true,
	"this": true, "that": true, "from": true, "have": true, "your": true, "you": true,
	"our": true, "any": true, "there": true, "which": true, "about": true, "into": true,
	"should": true, "would": true, "could": true, "will": true, "need": true, "may": true,
	"not": true, "get": true, "use": true, "policy": true,
}

// AnswerResult is the body of a /query response.
type AnswerResult struct {
	Answer     string   `json:"answer"`
	IsFallback bool     `json:"is_fallback"`
	Sources    []string `json:"sources"`
	// Backend names what produced the answer: a provider name or "retrieval".
	Backend string `json:"-"`
}

type AnswerService struct {
	db         *gorm.DB
	providers  []config.LLMProviderConfig
	llm        Completer
	maxSources int
}

func NewAnswerService(db *gorm.DB, assistant *config.AssistantConfig, llmCfg *config.LLMConfig, llm Completer) *AnswerService {
	maxSources := assistant.MaxSources
	if maxSources <= 0 {
		maxSources = 3
	}
	return &AnswerService{
		db:         db,
		providers:  llmCfg.Providers,
		llm:        llm,
		maxSources: maxSources,
	}
}

// BackendName is what /health reports as llm_backend.
func (s *AnswerService) BackendName() string {
	if len(s.providers) == 0 {
		return "retrieval"
	}
	p := s.providers[0]
	if p.Model != "" {
		return p.Provider + ":" + p.Model
	}
	return p.Provider
}

// Answer retrieves matching guidance and, when providers are configured, asks
// them in order to phrase an answer. Provider failures fall through to the next
// one and finally to the best excerpt.
func (s *AnswerService) Answer(ctx context.Context, question string) (*AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	docs, err := s.retrieve(question)
	if err != nil {
		return nil, fmt.Errorf("retrieve guidance: %w", err)
	}
	if len(docs) == 0 {
		logger.Info().Str("question", truncate(question, 80)).Msg("no guidance matched")
		return &AnswerResult{Answer: FallbackAnswer, IsFallback: true, Sources: []string{}, Backend: "retrieval"}, nil
	}

	sources := make([]string, 0, len(docs))
	for _, d := range docs {
		sources = append(sources, sourceLabel(d))
	}

	if len(s.providers) > 0 && s.llm != nil {
		prompt := buildAnswerPrompt(question, docs)
		var lastErr error
		for i := range s.providers {
			p := &s.providers[i]
			text, err := s.llm.Complete(ctx, p, answerSystemPrompt, prompt)
			if err != nil {
				lastErr = err
				logger.Warn().Err(err).Str("provider", p.Name).Msg("LLM failed, trying next")
				continue
			}
			text = strings.TrimSpace(text)
			if text == "" {
				lastErr = fmt.Errorf("%s returned an empty answer", p.Name)
				continue
			}
			isFallback := fallback.IsFallbackAnswer(text, false)
			if isFallback {
				sources = []string{}
			}
			return &AnswerResult{Answer: text, IsFallback: isFallback, Sources: sources, Backend: p.Name}, nil
		}
		logger.Error().Err(lastErr).Msg("all LLM providers failed, answering from retrieval")
	}

	return &AnswerResult{
		Answer:  excerptAnswer(docs[0]),
		Sources: sources,
		Backend: "retrieval",
	}, nil
}

type scoredDoc struct {
	doc   models.GuidanceDocument
	score int
}

// retrieve scores active guidance by keyword overlap with the question. Keyword
// and title hits count more than body hits.
func (s *AnswerService) retrieve(question string) ([]models.GuidanceDocument, error) {
	terms := tokenize(question)
	if len(terms) == 0 {
		return nil, nil
	}

	var docs []models.GuidanceDocument
	if err := s.db.Where("is_active = ?", true).Find(&docs).Error; err != nil {
		return nil, err
	}

	var scored []scoredDoc
	for _, d := range docs {
		keywords := make(map[string]bool)
		for _, k := range strings.Split(strings.ToLower(d.Keywords), ",") {
			if k = strings.TrimSpace(k); k != "" {
				keywords[k] = true
			}
		}
		title := tokenSet(d.Title)
		body := tokenSet(d.Body)

		score := 0
		for _, t := range terms {
			switch {
			case keywords[t]:
				score += 3
			case title[t]:
				score += 2
			case body[t]:
				score++
			}
		}
		if score >= 2 {
			scored = append(scored, scoredDoc{doc: d, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > s.maxSources {
		scored = scored[:s.maxSources]
	}

	out := make([]models.GuidanceDocument, 0, len(scored))
	for _, sd := range scored {
		out = append(out, sd.doc)
	}
	return out, nil
}

func tokenize(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) < 3 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokenize(text) {
		set[t] = true
	}
	return set
}

func buildAnswerPrompt(question string, docs []models.GuidanceDocument) string {
	var b strings.Builder
	b.WriteString("Guidance excerpts:\n\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, d.Title, d.Source, d.Body)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func excerptAnswer(d models.GuidanceDocument) string {
	return fmt.Sprintf("According to %s: %s", sourceLabel(d), strings.TrimSpace(d.Body))
}

func sourceLabel(d models.GuidanceDocument) string {
	if d.Source != "" {
		return d.Source
	}
	return d.Title
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
