package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"ecoopen-extract/internal/linkrepair"
	"ecoopen-extract/internal/models"
	"ecoopen-extract/internal/normalizer"
	"ecoopen-extract/internal/validation"
)

const availabilitySchema = `{
  "type": "object",
  "required": ["data", "code"],
  "properties": {
    "data": {"$ref": "#/$defs/entry"},
    "code": {"$ref": "#/$defs/entry"}
  },
  "$defs": {
    "entry": {
      "type": "object",
      "required": ["verdict", "raw_quote"],
      "properties": {
        "verdict": {"type": "string", "pattern": "^(?i:present|absent)$"},
        "raw_quote": {"type": "string"},
        "clean_statement": {"type": "string"},
        "links": {"type": "array", "items": {"type": "string"}},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

var compileAvailabilitySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("availability.json", strings.NewReader(availabilitySchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("availability.json")
})

// AvailabilityEntry is one side (data or code) of a structured answer.
type AvailabilityEntry struct {
	Verdict        string   `json:"verdict"`
	RawQuote       string   `json:"raw_quote"`
	CleanStatement string   `json:"clean_statement"`
	Links          []string `json:"links"`
	Confidence     float64  `json:"confidence"`
}

type AvailabilityReply struct {
	Data AvailabilityEntry `json:"data"`
	Code AvailabilityEntry `json:"code"`
}

// ExtractAvailability asks for both availability statements in one strict
// JSON answer. Each side is accepted only when its raw_quote is found in
// the contexts given for it.
func (e *Extractor) ExtractAvailability(ctx context.Context, dataChunks, codeChunks []models.Chunk) (data, code *models.Candidate, err error) {
	if e.agent == nil {
		return nil, nil, models.ErrAgentUnavailable
	}
	dataCtx, codeCtx := e.buildContext(dataChunks), e.buildContext(codeChunks)
	if dataCtx == "" && codeCtx == "" {
		return nil, nil, nil
	}

	prompt := fmt.Sprintf(models.AvailabilityUserTemplate,
		contextBlock("DATA", dataChunks, e.maxContextChars),
		contextBlock("CODE", codeChunks, e.maxContextChars))
	reply, err := e.agent.Complete(ctx, models.AvailabilitySystemPrompt, prompt)
	if err != nil {
		return nil, nil, agentError(ctx, err)
	}

	parsed, err := ParseAvailability(reply)
	if err != nil {
		log.Debug().Err(err).Msg("Structured availability answer rejected")
		return nil, nil, nil
	}

	data = availabilityCandidate(models.FieldDataStatement, parsed.Data, dataCtx)
	code = availabilityCandidate(models.FieldCodeStatement, parsed.Code, codeCtx)
	return data, code, nil
}

func contextBlock(label string, chunks []models.Chunk, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s CONTEXTS:", label)
	total := 0
	for i, c := range chunks {
		if total > 0 && total+len(c.Text) > maxChars {
			break
		}
		fmt.Fprintf(&b, "\n[%d] %s", i+1, c.Text)
		total += len(c.Text)
	}
	return b.String()
}

// ParseAvailability extracts the JSON object from reply and checks it
// against the availability schema.
func ParseAvailability(reply string) (*AvailabilityReply, error) {
	raw := strings.TrimSpace(stripFence(reply))
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: no JSON object in reply", models.ErrValidationRejected)
		}
		raw = raw[start : end+1]
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrValidationRejected, err)
		}
	}

	schema, err := compileAvailabilitySchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: json does not match schema: %v", models.ErrValidationRejected, err)
	}

	var out AvailabilityReply
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidationRejected, err)
	}
	return &out, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

func availabilityCandidate(field models.Field, entry AvailabilityEntry, context string) *models.Candidate {
	if !strings.EqualFold(entry.Verdict, "present") {
		return nil
	}
	quote, found := CleanReply(entry.RawQuote)
	if !found {
		return nil
	}
	if err := checkQuote(field, quote, context); err != nil {
		log.Debug().Err(err).Str("field", string(field)).Str("value", truncate(quote, 120)).Msg("Structured statement rejected")
		return nil
	}

	value := normalizer.Flatten(quote)
	// the cleaned statement may only repair spacing and hyphenation
	if clean, ok := CleanReply(entry.CleanStatement); ok && validation.Grounded(clean, context) {
		value = normalizer.Flatten(clean)
	}

	links := linkrepair.FromText(quote)
	links = append(links, groundedLinks(entry.Links, context)...)

	conf := StatementConfidence + 0.1*clamp01(entry.Confidence)
	return &models.Candidate{Field: field, Value: value, Links: links, Source: models.SourceLLM, Confidence: conf}
}

func checkQuote(field models.Field, quote, context string) error {
	if context == "" || !validation.Grounded(quote, context) {
		return fmt.Errorf("%w: quote not in context", models.ErrValidationRejected)
	}
	if !validation.HasAvailabilityVocabulary(normalizer.Normalize(quote), field.IsData()) {
		return fmt.Errorf("%w: no availability wording", models.ErrValidationRejected)
	}
	return nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
