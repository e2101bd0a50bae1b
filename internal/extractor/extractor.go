// Package extractor asks the agent for one field at a time over retrieved
// context and only accepts answers that can be found in that context.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"ecoopen-extract/internal/linkrepair"
	"ecoopen-extract/internal/llmservice"
	"ecoopen-extract/internal/models"
	"ecoopen-extract/internal/normalizer"
	"ecoopen-extract/internal/validation"
)

// Confidence of accepted agent answers, by how strict the field's check is.
const (
	DOIConfidence       = 0.85
	TitleConfidence     = 0.8
	StatementConfidence = 0.8
	LicenseConfidence   = 0.7
	LinkConfidence      = 0.7
)

const defaultMaxContextChars = 12000

var (
	codeFenceRe  = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	labelRe      = regexp.MustCompile(`(?i)^(?:doi|title|answer|statement|license|links?)\s*:\s*`)
	linkSplitRe  = regexp.MustCompile(`[\s,;]+`)
	noneSentinel = map[string]bool{"": true, "none": true, "not found": true, "n/a": true, "na": true, "null": true}
)

// Extractor is safe for concurrent use.
type Extractor struct {
	agent           llmservice.Completer
	maxContextChars int
}

type Option func(*Extractor)

// WithMaxContextChars caps the context sent with each prompt.
func WithMaxContextChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxContextChars = n
		}
	}
}

func New(agent llmservice.Completer, opts ...Option) *Extractor {
	e := &Extractor{agent: agent, maxContextChars: defaultMaxContextChars}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract prompts the agent for field over chunks. A nil candidate with a
// nil error means the agent found nothing or its answer failed validation.
// Errors are either the context error or wrap models.ErrAgentUnavailable.
func (e *Extractor) Extract(ctx context.Context, field models.Field, chunks []models.Chunk) (*models.Candidate, error) {
	if e.agent == nil {
		return nil, models.ErrAgentUnavailable
	}
	system, ok := models.SystemPrompts[field]
	if !ok {
		return nil, fmt.Errorf("no prompt for field %q", field)
	}
	text := e.buildContext(chunks)
	if text == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(models.UserPromptTemplate, text, models.FieldLabels[field])
	reply, err := e.agent.Complete(ctx, system, prompt)
	if err != nil {
		return nil, agentError(ctx, err)
	}

	value, found := CleanReply(reply)
	if !found {
		log.Debug().Str("field", string(field)).Msg("Agent reported no value")
		return nil, nil
	}

	cand, err := validate(field, value, text)
	if err != nil {
		log.Debug().Err(err).Str("field", string(field)).Str("value", truncate(value, 120)).Msg("Agent answer rejected")
		return nil, nil
	}
	return cand, nil
}

func agentError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, models.ErrAgentUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrAgentUnavailable, err)
}

// buildContext joins chunk texts with a separator until the character cap.
func (e *Extractor) buildContext(chunks []models.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		add := len(c.Text)
		if b.Len() > 0 {
			add += len(models.ContextSeparator)
		}
		if b.Len() > 0 && b.Len()+add > e.maxContextChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString(models.ContextSeparator)
		}
		b.WriteString(c.Text)
	}
	return b.String()
}

// CleanReply strips reasoning blocks, code fences, labels and quotes from an
// agent answer. found is false for the "None" family of sentinels.
func CleanReply(reply string) (value string, found bool) {
	s := llmservice.StripThink(reply)
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.TrimSpace(labelRe.ReplaceAllString(strings.TrimSpace(s), ""))
	s = strings.Trim(s, "\"'`“”")
	s = strings.TrimSpace(s)

	sentinel := strings.ToLower(strings.TrimRight(s, ".!"))
	if noneSentinel[sentinel] {
		return "", false
	}
	return s, true
}

func validate(field models.Field, value, context string) (*models.Candidate, error) {
	cand := &models.Candidate{Field: field, Source: models.SourceLLM}

	switch {
	case field == models.FieldDOI:
		doi, ok := validation.DOI(value)
		if !ok {
			return nil, fmt.Errorf("%w: malformed DOI", models.ErrValidationRejected)
		}
		if !validation.MentionsDOI(context, doi) {
			return nil, fmt.Errorf("%w: DOI not in context", models.ErrValidationRejected)
		}
		cand.Value, cand.Confidence = doi, DOIConfidence

	case field == models.FieldTitle:
		value = normalizer.Flatten(value)
		if !validation.Title(value) {
			return nil, fmt.Errorf("%w: not a title", models.ErrValidationRejected)
		}
		if !validation.Grounded(value, context) {
			return nil, fmt.Errorf("%w: title not in context", models.ErrValidationRejected)
		}
		cand.Value, cand.Confidence = value, TitleConfidence

	case field.IsStatement():
		if !validation.Grounded(value, context) {
			return nil, fmt.Errorf("%w: statement not in context", models.ErrValidationRejected)
		}
		if !validation.HasAvailabilityVocabulary(value, field.IsData()) {
			return nil, fmt.Errorf("%w: no availability wording", models.ErrValidationRejected)
		}
		cand.Value, cand.Confidence = strings.TrimSpace(value), StatementConfidence
		cand.Links = linkrepair.FromText(value)

	case field.IsLicense():
		value = normalizer.Flatten(value)
		if !validation.HasLicenseVocabulary(value) {
			return nil, fmt.Errorf("%w: no license named", models.ErrValidationRejected)
		}
		if !validation.Grounded(value, context) {
			return nil, fmt.Errorf("%w: license not in context", models.ErrValidationRejected)
		}
		cand.Value, cand.Confidence = value, LicenseConfidence

	case field == models.FieldDataLinks || field == models.FieldCodeLinks:
		links := groundedLinks(linkSplitRe.Split(value, -1), context)
		if len(links) == 0 {
			return nil, fmt.Errorf("%w: no link found in context", models.ErrValidationRejected)
		}
		cand.Links, cand.Confidence = links, LinkConfidence

	default:
		return nil, fmt.Errorf("%w: unknown field %q", models.ErrValidationRejected, field)
	}
	return cand, nil
}

// groundedLinks keeps the links that are valid URLs and occur in context.
// Comparison ignores scheme, case and whitespace so that links split across
// lines in the context still count.
func groundedLinks(raw []string, context string) []string {
	squashed := squashLink(context)
	var out []string
	for _, r := range raw {
		u, ok := linkrepair.Clean(r)
		if !ok {
			continue
		}
		key := squashLink(strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://"))
		key = strings.TrimPrefix(key, "www.")
		if key == "" || !strings.Contains(squashed, key) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func squashLink(s string) string {
	return strings.TrimRight(strings.ToLower(strings.Join(strings.Fields(s), "")), "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
