// Package pipeline runs the full extraction for one document: load,
// normalize, chunk, index, extract field by field, repair links and score.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"ecoopen-extract/internal/chromemdb"
	"ecoopen-extract/internal/config"
	"ecoopen-extract/internal/doiregistry"
	"ecoopen-extract/internal/embedding"
	"ecoopen-extract/internal/extractor"
	"ecoopen-extract/internal/heuristics"
	"ecoopen-extract/internal/linkrepair"
	"ecoopen-extract/internal/llmservice"
	"ecoopen-extract/internal/models"
	"ecoopen-extract/internal/normalizer"
	"ecoopen-extract/internal/parser"
	"ecoopen-extract/internal/validation"
)

const (
	// AgreementBonus is added when the agent and the rules found the same value.
	AgreementBonus = 0.05
	// RegistryBonus is added to a DOI the registry knows about.
	RegistryBonus = 0.05
	MaxConfidence = 0.95

	defaultTopK            = 6
	defaultMaxContextChars = 12000
	expandMaxChars         = 600
	registryTitleMatch     = 0.5
)

// Registry confirms DOIs against an external index.
type Registry interface {
	Lookup(ctx context.Context, doi string) (*doiregistry.Record, error)
}

// Orchestrator holds only immutable collaborators, so one instance can
// serve concurrent Analyze calls.
type Orchestrator struct {
	loader     parser.Loader
	chunker    *parser.Chunker
	embedder   embeddings.Embedder
	agent      llmservice.Completer
	rules      *heuristics.Extractor
	registry   Registry
	agentModel string

	topK            int
	maxContextChars int
	structured      bool
	expand          bool
}

type Option func(*Orchestrator)

func WithLoader(l parser.Loader) Option { return func(o *Orchestrator) { o.loader = l } }

func WithChunker(c *parser.Chunker) Option { return func(o *Orchestrator) { o.chunker = c } }

func WithRegistry(r Registry) Option { return func(o *Orchestrator) { o.registry = r } }

func WithAgentModel(name string) Option { return func(o *Orchestrator) { o.agentModel = name } }

func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

func WithMaxContextChars(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxContextChars = n
		}
	}
}

// WithStructuredAvailability extracts both statements with one JSON prompt.
func WithStructuredAvailability(on bool) Option {
	return func(o *Orchestrator) { o.structured = on }
}

// WithContextExpansion widens agent statements to their whole paragraph.
func WithContextExpansion(on bool) Option {
	return func(o *Orchestrator) { o.expand = on }
}

// New wires an orchestrator. embedder and agent may be nil, in which case
// every document is analyzed by the rules alone.
func New(embedder embeddings.Embedder, agent llmservice.Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		loader:          parser.PDFLoader{},
		chunker:         parser.NewChunker(),
		embedder:        embedder,
		agent:           agent,
		rules:           heuristics.New(),
		topK:            defaultTopK,
		maxContextChars: defaultMaxContextChars,
		expand:          true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewFromConfig builds the embedder, agent client and optional registry
// described by cfg. extra options are applied last.
func NewFromConfig(cfg *config.Config, extra ...Option) (*Orchestrator, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	agent, err := llmservice.NewClient(&cfg.AgentLLM)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithChunker(parser.NewChunker(parser.WithChunkSize(cfg.RAG.ChunkSize), parser.WithOverlap(cfg.RAG.ChunkOverlap))),
		WithTopK(cfg.RAG.TopK),
		WithMaxContextChars(cfg.RAG.MaxContextChars),
		WithStructuredAvailability(cfg.Extraction.StructuredAvailability),
		WithContextExpansion(cfg.Extraction.ContextExpansion),
		WithAgentModel(cfg.AgentLLM.Model),
	}
	if cfg.Extraction.DOIRegistry {
		opts = append(opts, WithRegistry(doiregistry.New(
			doiregistry.WithBaseURL(cfg.Extraction.RegistryURL),
			doiregistry.WithTimeout(cfg.Extraction.RegistryTimeout),
			doiregistry.WithUserAgent(doiregistry.UserAgent(cfg.Extraction.RegistryMailto)),
		)))
	}
	return New(embedder, agent, append(opts, extra...)...), nil
}

// run carries the state of one Analyze call.
type run struct {
	*Orchestrator
	logger zerolog.Logger
	result *models.AnalysisResult

	text      string
	firstPage string
	index     *chromemdb.Index
	llm       *extractor.Extractor
	degraded  bool
	chosen    map[models.Field]*models.Candidate
	ruleOut   map[models.Field]*models.Candidate
	agentOut  map[models.Field]*models.Candidate
}

// Analyze extracts metadata from one PDF. The result is never nil. A
// non-nil error is returned only for unreadable input (ErrInvalidDocument)
// and cancellation (ErrCancelled, with the fields found so far); service
// outages degrade to rule-based extraction without an error.
func (o *Orchestrator) Analyze(ctx context.Context, data []byte, filename string) (*models.AnalysisResult, error) {
	r := &run{
		Orchestrator: o,
		logger:       log.With().Str("file", filename).Logger(),
		result:       models.NewAnalysisResult(filename),
		chosen:       make(map[models.Field]*models.Candidate),
		ruleOut:      make(map[models.Field]*models.Candidate),
		agentOut:     make(map[models.Field]*models.Candidate),
	}
	if err := ctx.Err(); err != nil {
		return r.cancelled(err)
	}

	r.logger.Debug().Str("state", "loading").Msg("Analyzing document")
	pages, err := o.loader.Load(ctx, data)
	if err == nil {
		r.text = normalizer.Normalize(strings.Join(pages, "\n\n"))
		r.firstPage = firstPage(pages)
		if r.text == "" {
			err = fmt.Errorf("%w: no text after normalization", models.ErrInvalidDocument)
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.cancelled(ctxErr)
		}
		r.logger.Warn().Err(err).Str("state", "invalid").Msg("Unreadable document")
		r.result.SetError(models.MsgInvalidDocument)
		return r.result, models.NewAnalysisError(models.ErrInvalidDocument, models.MsgInvalidDocument, err)
	}

	chunks := slices.Collect(o.chunker.Chunks(r.text))
	r.logger.Debug().Str("state", "chunking").Int("chunks", len(chunks)).Int("chars", len(r.text)).Msg("Document chunked")

	for _, f := range models.Fields {
		r.ruleOut[f] = r.ruleCandidate(f)
	}

	if err := r.buildIndex(ctx, chunks); err != nil {
		return r.cancelled(err)
	}
	if r.index != nil {
		defer r.index.Close()
	}

	if err := r.extractFields(ctx); err != nil {
		return r.cancelled(err)
	}
	if err := r.resolveLinks(ctx); err != nil {
		return r.cancelled(err)
	}
	r.checkRegistry(ctx)

	r.logger.Info().Str("state", "done").
		Bool("heuristic_only", r.index == nil || r.degraded).
		Int("fields", len(r.chosen)).
		Msg("Analysis finished")
	return r.result, nil
}

func firstPage(pages []string) string {
	for _, p := range pages {
		if n := normalizer.Normalize(p); n != "" {
			return n
		}
	}
	return ""
}

func (r *run) cancelled(cause error) (*models.AnalysisResult, error) {
	r.logger.Info().Err(cause).Str("state", "cancelled").Msg("Analysis cancelled")
	r.result.SetError(models.MsgCancelled)
	return r.result, models.NewAnalysisError(models.ErrCancelled, models.MsgCancelled, cause)
}

func (r *run) ruleCandidate(f models.Field) *models.Candidate {
	if f == models.FieldTitle {
		return r.rules.Title(r.firstPage)
	}
	return r.rules.Extract(r.text, f)
}

// buildIndex leaves r.index nil when the embedding service cannot be used.
// Only cancellation is returned as an error.
func (r *run) buildIndex(ctx context.Context, chunks []models.Chunk) error {
	if r.embedder == nil || r.agent == nil {
		r.logger.Info().Str("state", "heuristic_only").Msg("No embedder or agent configured")
		return nil
	}
	index, err := chromemdb.Build(ctx, r.embedder, chunks)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		r.logger.Warn().Err(err).Str("state", "heuristic_only").Msg("Indexing failed, falling back to rules")
		return nil
	}
	r.index = index
	r.llm = extractor.New(r.agent, extractor.WithMaxContextChars(r.maxContextChars))
	return nil
}

func (r *run) llmReady() bool { return r.index != nil && !r.degraded }

// handleLLMError records an outage and reports whether err is a
// cancellation that must stop the run.
func (r *run) handleLLMError(ctx context.Context, f models.Field, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	r.degraded = true
	r.logger.Warn().Err(err).Str("field", string(f)).Str("state", "heuristic_only").Msg("Agent unavailable, falling back to rules")
	return nil
}

func (r *run) retrieve(ctx context.Context, f models.Field) ([]models.Chunk, error) {
	return r.index.Retrieve(ctx, models.RetrievalQueries[f], r.topK, r.maxContextChars)
}

func (r *run) structuredAvailability(ctx context.Context) error {
	dataChunks, err := r.retrieve(ctx, models.FieldDataStatement)
	if err != nil {
		return r.handleLLMError(ctx, models.FieldDataStatement, err)
	}
	codeChunks, err := r.retrieve(ctx, models.FieldCodeStatement)
	if err != nil {
		return r.handleLLMError(ctx, models.FieldCodeStatement, err)
	}
	data, code, err := r.llm.ExtractAvailability(ctx, dataChunks, codeChunks)
	if err != nil {
		return r.handleLLMError(ctx, models.FieldDataStatement, err)
	}
	r.agentOut[models.FieldDataStatement] = data
	r.agentOut[models.FieldCodeStatement] = code
	return nil
}

func (r *run) askAgent(ctx context.Context, f models.Field) (*models.Candidate, error) {
	if !r.llmReady() {
		return nil, nil
	}
	if r.structured && f.IsStatement() {
		return r.agentOut[f], nil
	}
	chunks, err := r.retrieve(ctx, f)
	if err != nil {
		return nil, r.handleLLMError(ctx, f, err)
	}
	cand, err := r.llm.Extract(ctx, f, chunks)
	if err != nil {
		return nil, r.handleLLMError(ctx, f, err)
	}
	return cand, nil
}

// extractFields resolves the scalar fields in a fixed order, checking for
// cancellation before each one.
func (r *run) extractFields(ctx context.Context) error {
	if r.llmReady() && r.structured {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.structuredAvailability(ctx); err != nil {
			return err
		}
	}

	for _, f := range models.Fields {
		if err := ctx.Err(); err != nil {
			return err
		}
		agentCand, err := r.askAgent(ctx, f)
		if err != nil {
			return err
		}

		ruleCand := r.ruleOut[f]
		if ruleCand == nil && f.IsLicense() {
			// the rules may still find a license in a statement only the agent located
			if stmt := r.chosen[statementFor(f)]; stmt != nil {
				ruleCand = r.rules.License(stmt.Value, f)
			}
		}

		final := Reconcile(agentCand, ruleCand)
		if final == nil {
			continue
		}
		value := final.Value
		if r.expand && f.IsStatement() && final.Source == models.SourceLLM {
			value = r.rules.ExpandStatement(r.text, value, expandMaxChars)
			final.Value = value
		}
		r.chosen[f] = final
		r.result.Set(f, value, final.Confidence)
		r.logger.Debug().Str("field", string(f)).Str("source", string(final.Source)).Float64("confidence", final.Confidence).Msg("Field resolved")
	}
	return nil
}

func statementFor(f models.Field) models.Field {
	if f.IsData() {
		return models.FieldDataStatement
	}
	return models.FieldCodeStatement
}

// Reconcile picks between the agent and rule candidates for one field. The
// two agree when their DOIs are identical or, for text fields, when one
// contains the other on word boundaries; the longer value is kept and
// confidence rises. Otherwise the rule value wins.
func Reconcile(agent, rule *models.Candidate) *models.Candidate {
	switch {
	case agent == nil && rule == nil:
		return nil
	case agent == nil:
		out := *rule
		return &out
	case rule == nil:
		out := *agent
		return &out
	}

	if !agrees(agent, rule) {
		log.Debug().Str("field", string(agent.Field)).Str("llm", agent.Value).Str("heuristic", rule.Value).Msg("Agent and rules disagree, keeping rule value")
		out := *rule
		return &out
	}
	out := *agent
	if len(validation.Canonical(rule.Value)) > len(validation.Canonical(agent.Value)) {
		out.Value = rule.Value
	}
	out.Confidence = min(agent.Confidence+AgreementBonus, MaxConfidence)
	out.Links = append(slices.Clone(agent.Links), rule.Links...)
	return &out
}

func agrees(agent, rule *models.Candidate) bool {
	if agent.Field == models.FieldDOI || rule.Field == models.FieldDOI {
		return validation.SameDOI(agent.Value, rule.Value)
	}
	return validation.Overlaps(agent.Value, rule.Value)
}

// resolveLinks gathers link candidates from the chosen statements (plus
// agent link answers for sides that have a statement), repairs them and
// splits them into data and code links.
func (r *run) resolveLinks(ctx context.Context) error {
	sides := []struct {
		linkField models.Field
		stmtField models.Field
	}{
		{models.FieldDataLinks, models.FieldDataStatement},
		{models.FieldCodeLinks, models.FieldCodeStatement},
	}

	raw := make(map[models.Field][]string)
	conf := make(map[models.Field]float64)
	for _, s := range sides {
		if err := ctx.Err(); err != nil {
			return err
		}
		stmt := r.chosen[s.stmtField]
		if stmt == nil {
			continue
		}
		raw[s.linkField] = append(linkrepair.FromText(stmt.Value), stmt.Links...)
		conf[s.linkField] = stmt.Confidence

		agentLinks, err := r.askAgent(ctx, s.linkField)
		if err != nil {
			return err
		}
		if agentLinks != nil {
			raw[s.linkField] = append(raw[s.linkField], agentLinks.Links...)
			conf[s.linkField] = max(conf[s.linkField], agentLinks.Confidence)
		}
	}

	data := linkrepair.Repair(raw[models.FieldDataLinks])
	code := linkrepair.Repair(raw[models.FieldCodeLinks])

	// one shared "data and code availability" section: split by host
	if d, c := r.chosen[models.FieldDataStatement], r.chosen[models.FieldCodeStatement]; d != nil && c != nil &&
		validation.Canonical(d.Value) == validation.Canonical(c.Value) {
		all := linkrepair.Repair(append(data, code...))
		data, code = []string{}, []string{}
		for _, u := range all {
			if linkrepair.Classify(u) == linkrepair.KindCode {
				code = append(code, u)
			} else {
				data = append(data, u)
			}
		}
	}

	r.result.DataLinks, r.result.CodeLinks = data, code
	if len(data) > 0 {
		r.result.ConfidenceScores[string(models.FieldDataLinks)] = conf[models.FieldDataLinks]
	}
	if len(code) > 0 {
		r.result.ConfidenceScores[string(models.FieldCodeLinks)] = conf[models.FieldCodeLinks]
	}
	return nil
}

// checkRegistry raises DOI (and matching title) confidence when the DOI is
// known to the registry. Registry errors are logged and ignored.
func (r *run) checkRegistry(ctx context.Context) {
	doi := r.chosen[models.FieldDOI]
	if r.registry == nil || doi == nil || ctx.Err() != nil {
		return
	}
	rec, err := r.registry.Lookup(ctx, doi.Value)
	if err != nil {
		r.logger.Warn().Err(err).Str("doi", doi.Value).Msg("DOI registry lookup failed")
		return
	}
	if rec == nil {
		return
	}
	scores := r.result.ConfidenceScores
	scores[string(models.FieldDOI)] = min(scores[string(models.FieldDOI)]+RegistryBonus, MaxConfidence)
	if title := r.chosen[models.FieldTitle]; title != nil && doiregistry.TitleSimilarity(title.Value, rec.Title) >= registryTitleMatch {
		scores[string(models.FieldTitle)] = min(scores[string(models.FieldTitle)]+RegistryBonus, MaxConfidence)
	}
}

// Health probes the embedding service and the agent.
func (o *Orchestrator) Health(ctx context.Context) models.Health {
	h := models.Health{AgentModel: o.agentModel}
	h.EmbeddingsReachable = embedding.Probe(ctx, o.embedder) == nil
	if o.agent != nil {
		h.AgentReachable = llmservice.Ping(ctx, o.agent) == nil
	}
	switch {
	case h.AgentReachable && h.EmbeddingsReachable:
		h.Status = "ok"
	case h.AgentReachable || h.EmbeddingsReachable:
		h.Status = "degraded"
	default:
		h.Status = "heuristic_only"
	}
	return h
}
