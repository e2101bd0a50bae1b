// Package heuristics implements the deterministic, rule-based extraction
// path. It anchors the LLM results and is the only path used when the
// embedding or agent services are down.
package heuristics

import (
	"regexp"
	"strings"
	"unicode"

	"ecoopen-extract/internal/linkrepair"
	"ecoopen-extract/internal/models"
	"ecoopen-extract/internal/normalizer"
	"ecoopen-extract/internal/validation"
)

// Confidence assigned to heuristic candidates. All of them stay below the
// confidence of an LLM value that passed validation.
const (
	HeadingConfidence = 0.55
	PhraseConfidence  = 0.4
	DOIConfidence     = 0.6
	LicenseConfidence = 0.45
	LinkConfidence    = 0.5
)

const (
	defaultMaxParagraphs = 3
	maxStatementChars    = 1500
	longParagraphChars   = 600
	doiSearchChars       = 20000
)

var (
	dataHeadingRe = regexp.MustCompile(`(?i)^(?:\d+(?:\.\d+)*\.?\s*)?(data availability(?: statement)?|availability of data(?: and materials?)?|data and materials? availability|(?:code and data|data and code) availability(?: statement)?|data accessibility(?: statement)?|availability of supporting data|data archiving(?: statement)?)\b\s*([:.\-])?\s*(.*)$`)
	codeHeadingRe = regexp.MustCompile(`(?i)^(?:\d+(?:\.\d+)*\.?\s*)?(code availability(?: statement)?|software availability(?: statement)?|source code availability|(?:code and data|data and code) availability(?: statement)?|availability of (?:code|software)(?: and data)?|code accessibility)\b\s*([:.\-])?\s*(.*)$`)

	sectionRe    = regexp.MustCompile(`(?i)^(?:\d+(?:\.\d+)*\.?\s*)?(acknowledge?ments?|funding(?: information| statement)?|references|bibliography|literature cited|author contributions?|competing interests?|conflicts? of interests?|declaration of (?:competing )?interests?|ethics(?: statement| approval)?|supplementary (?:information|materials?)|supporting information|abbreviations|appendix|methods|materials and methods|results|discussion|conclusions?|keywords|orcid)\b`)
	referencesRe = regexp.MustCompile(`(?i)^(?:\d+\.?\s*)?(references|bibliography|literature cited)\s*$`)

	dataPhraseRe = regexp.MustCompile(`(?i)\b(?:data(?:sets?)?\s+(?:are|is|were|was|have been|has been|will be)\s+(?:made\s+)?(?:publicly\s+|freely\s+|openly\s+)?(?:available|deposited|archived|accessible)|data\s+can\s+be\s+(?:accessed|obtained|downloaded)|data\s+available\s+(?:at|from|in|on|upon)|datasets?\s+(?:is\s+|are\s+)?available|supplementary\s+data\s+(?:are|is)\s+available|available\s+(?:upon|on)\s+reasonable\s+request|deposited\s+(?:in|at|to|with)\s+(?:the\s+)?(?:zenodo|dryad|figshare|pangaea|osf|dataverse|genbank|ncbi|ebi|sra|ena|mendeley))`)
	codePhraseRe = regexp.MustCompile(`(?i)\b(?:(?:source\s+|analysis\s+|r\s+|python\s+)?code\s+(?:is|are|was|has been|have been|will be)\s+(?:made\s+)?(?:publicly\s+|freely\s+|openly\s+)?(?:available|deposited|archived|accessible)|scripts?\s+(?:are|is|were|was)\s+(?:publicly\s+|freely\s+)?available|software\s+(?:is\s+)?(?:publicly\s+|freely\s+)?available|code\s+(?:can\s+be\s+)?(?:found|accessed|obtained|downloaded)\s+(?:at|on|from)|(?:github|gitlab|bitbucket)\.(?:com|org|io)/)`)

	affiliationRe = regexp.MustCompile(`(?i)\b(authors?|affiliations?|department|correspondence|corresponding|university|institute|college|school of|laboratory)\b`)
)

// Extractor runs the rule-based extraction. It holds no state and is safe
// for concurrent use.
type Extractor struct {
	maxParagraphs int
}

type Option func(*Extractor)

// WithMaxParagraphs sets how many paragraphs after a heading are captured.
func WithMaxParagraphs(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxParagraphs = n
		}
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{maxParagraphs: defaultMaxParagraphs}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract dispatches to the field-specific rule. title and doi read the text
// directly; licenses are looked up in the matching statement.
func (e *Extractor) Extract(text string, field models.Field) *models.Candidate {
	switch field {
	case models.FieldDataStatement, models.FieldCodeStatement:
		return e.ExtractHeadings(text, field)
	case models.FieldDOI:
		return e.DOI(text)
	case models.FieldTitle:
		return e.Title(text)
	case models.FieldDataLicense, models.FieldCodeLicense:
		stmtField := models.FieldDataStatement
		if field == models.FieldCodeLicense {
			stmtField = models.FieldCodeStatement
		}
		stmt := e.ExtractHeadings(text, stmtField)
		if stmt == nil {
			return nil
		}
		return e.License(stmt.Value, field)
	case models.FieldDataLinks, models.FieldCodeLinks:
		stmtField := models.FieldDataStatement
		if field == models.FieldCodeLinks {
			stmtField = models.FieldCodeStatement
		}
		stmt := e.ExtractHeadings(text, stmtField)
		if stmt == nil || len(stmt.Links) == 0 {
			return nil
		}
		return &models.Candidate{Field: field, Links: stmt.Links, Source: models.SourceHeuristic, Confidence: LinkConfidence}
	}
	return nil
}

// ExtractHeadings finds the data or code availability statement. Known
// section headings are tried first; when none is present the first
// paragraph containing an availability phrase is used. Returns nil when
// nothing matches.
func (e *Extractor) ExtractHeadings(text string, field models.Field) *models.Candidate {
	if !field.IsStatement() || strings.TrimSpace(text) == "" {
		return nil
	}
	headingRe, phraseRe := dataHeadingRe, dataPhraseRe
	if field == models.FieldCodeStatement {
		headingRe, phraseRe = codeHeadingRe, codePhraseRe
	}

	paragraphs := splitLines(text)

	if body := e.byHeading(paragraphs, headingRe); body != "" {
		return e.candidate(field, body, HeadingConfidence)
	}
	if body := byPhrase(paragraphs, phraseRe); body != "" {
		return e.candidate(field, body, PhraseConfidence)
	}
	return nil
}

func (e *Extractor) candidate(field models.Field, value string, confidence float64) *models.Candidate {
	value = capStatement(value)
	return &models.Candidate{
		Field:      field,
		Value:      value,
		Links:      e.ExtractLinks(value),
		Source:     models.SourceHeuristic,
		Confidence: confidence,
	}
}

// ExtractLinks returns the raw URL candidates mentioned in a statement.
// Links elsewhere in the document are never considered.
func (e *Extractor) ExtractLinks(statement string) []string {
	return linkrepair.FromText(statement)
}

// byHeading scans line by line so that headings glued to the previous
// paragraph are still found.
func (e *Extractor) byHeading(paragraphs [][]string, headingRe *regexp.Regexp) string {
	for pi, lines := range paragraphs {
		for li, line := range lines {
			m := headingRe.FindStringSubmatch(line)
			if m == nil || !acceptHeading(m[2], m[3]) {
				continue
			}

			var body []string
			current, stopped := collectLines(lines[li+1:], m[3])
			if current != "" {
				body = append(body, current)
			}
			if stopped {
				if len(body) > 0 {
					return body[0]
				}
				continue
			}
			for next := pi + 1; next < len(paragraphs) && len(body) < e.maxParagraphs; next++ {
				following := paragraphs[next]
				if isHeadingLine(following[0], "") {
					break
				}
				block, stopped := collectLines(following, "")
				if block == "" {
					break
				}
				// later paragraphs only continue a statement that talks about access
				if len(body) > 0 && !continuesStatement(block) {
					break
				}
				body = append(body, block)
				if stopped {
					break
				}
			}
			if len(body) > 0 {
				return strings.Join(body, "\n\n")
			}
		}
	}
	return ""
}

// acceptHeading tells a heading ("Data availability: ...", "Data
// Availability The data...") from a sentence that merely starts with the
// same words ("Data availability is essential ...").
func acceptHeading(punct, rest string) bool {
	if punct != "" || rest == "" {
		return true
	}
	r := []rune(rest)[0]
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}

// collectLines joins lines of one paragraph until a heading-like line and
// reports whether it stopped at one.
func collectLines(lines []string, first string) (string, bool) {
	var parts []string
	prev := ""
	if first != "" {
		parts = append(parts, first)
		prev = first
	}
	stopped := false
	for _, line := range lines {
		if isHeadingLine(line, prev) {
			stopped = true
			break
		}
		parts = append(parts, line)
		prev = line
	}
	return flattenLines(parts), stopped
}

// flattenLines joins lines into one, first rejoining URLs split by the wrap.
func flattenLines(lines []string) string {
	return normalizer.Flatten(linkrepair.JoinWrapped(strings.Join(lines, "\n")))
}

// isHeadingLine reports whether line starts a new section. A short
// capitalised line only counts when the previous line closed its sentence,
// so wrapped repository names are not mistaken for headings.
func isHeadingLine(line, prev string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if sectionHeading(line) || headingStart(line) {
		return true
	}
	if prev != "" && !strings.ContainsAny(prev[len(prev)-1:], ".!?:") {
		return false
	}
	words := strings.Fields(line)
	if len(words) > 6 || strings.Contains(line, "://") {
		return false
	}
	if strings.ContainsAny(line[len(line)-1:], ".,;:!?)") {
		return false
	}
	r := []rune(line)[0]
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}

// sectionHeading matches "References", "2. Methods" or "Funding: ..." but
// not a sentence such as "Results were consistent across sites".
func sectionHeading(line string) bool {
	loc := sectionRe.FindStringIndex(line)
	if loc == nil {
		return false
	}
	rest := strings.TrimSpace(line[loc[1]:])
	return rest == "" || strings.ContainsAny(rest[:1], ":.") || len(strings.Fields(line)) <= 4
}

func headingStart(line string) bool {
	return headingMatch(line) != nil
}

func continuesStatement(block string) bool {
	if strings.Contains(block, "://") || strings.Contains(strings.ToLower(block), "doi") {
		return true
	}
	return validation.HasAvailabilityVocabulary(block, true) || validation.HasAvailabilityVocabulary(block, false)
}

// byPhrase returns the paragraph (or, for long paragraphs, the sentences)
// around the first availability phrase before the reference list.
func byPhrase(paragraphs [][]string, phraseRe *regexp.Regexp) string {
	for _, lines := range paragraphs {
		if referencesRe.MatchString(lines[0]) {
			return ""
		}
		if isHeadingLine(lines[0], "") && len(lines) > 1 {
			lines = lines[1:]
		}
		para := flattenLines(lines)
		loc := phraseRe.FindStringIndex(para)
		if loc == nil {
			continue
		}
		if len(para) <= longParagraphChars {
			return para
		}
		return sentencesAround(para, loc[0])
	}
	return ""
}

// sentencesAround returns the sentence containing offset plus the following
// one when it carries a link or continues the statement.
func sentencesAround(text string, offset int) string {
	spans := sentenceSpans(text)
	for i, s := range spans {
		if offset < s[0] || offset >= s[1] {
			continue
		}
		out := text[s[0]:s[1]]
		if i+1 < len(spans) {
			next := text[spans[i+1][0]:spans[i+1][1]]
			if continuesStatement(next) {
				out += " " + next
			}
		}
		return strings.TrimSpace(out)
	}
	return ""
}

var abbreviations = []string{"e.g.", "i.e.", "et al.", "fig.", "figs.", "no.", "vol.", "approx.", "ca.", "cf.", "resp.", "eq."}

// sentenceSpans splits text at ". ", "! " and "? " followed by an upper-case
// letter or digit, skipping common abbreviations.
func sentenceSpans(text string) [][2]int {
	var spans [][2]int
	start := 0
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if text[i+1] != ' ' {
			continue
		}
		j := i + 1
		for j < len(text) && text[j] == ' ' {
			j++
		}
		if j >= len(text) {
			break
		}
		r := []rune(text[j:])[0]
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			continue
		}
		lower := strings.ToLower(text[start : i+1])
		abbrev := false
		for _, a := range abbreviations {
			if strings.HasSuffix(lower, " "+a) || lower == a {
				abbrev = true
				break
			}
		}
		if abbrev {
			continue
		}
		spans = append(spans, [2]int{start, i + 1})
		start = j
	}
	if start < len(text) {
		spans = append(spans, [2]int{start, len(text)})
	}
	return spans
}

func capStatement(s string) string {
	if len(s) <= maxStatementChars {
		return s
	}
	spans := sentenceSpans(s)
	out := ""
	for _, sp := range spans {
		if sp[1] > maxStatementChars {
			break
		}
		out = s[:sp[1]]
	}
	if out == "" {
		cut := maxStatementChars
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		out = s[:cut]
	}
	return strings.TrimSpace(out)
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// splitLines returns the trimmed, non-empty lines of each paragraph.
func splitLines(text string) [][]string {
	var out [][]string
	for _, p := range normalizer.Paragraphs(text) {
		var lines []string
		for _, l := range strings.Split(p, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) > 0 {
			out = append(out, lines)
		}
	}
	return out
}

// DOI scans the front matter (text before the reference list, capped at
// 20k characters) for the article DOI. DOIs minted by data repositories are
// skipped because they identify datasets, not the paper.
func (e *Extractor) DOI(text string) *models.Candidate {
	zone := text
	for _, lines := range splitLines(text) {
		if referencesRe.MatchString(lines[0]) {
			if idx := strings.Index(text, lines[0]); idx >= 0 {
				zone = text[:idx]
			}
			break
		}
	}
	if len(zone) > doiSearchChars {
		zone = zone[:doiSearchChars]
	}

	for zone != "" {
		doi, ok := validation.FindDOI(zone)
		if !ok {
			return nil
		}
		if !validation.IsDatasetDOI(doi) {
			return &models.Candidate{Field: models.FieldDOI, Value: doi, Source: models.SourceHeuristic, Confidence: DOIConfidence}
		}
		idx := strings.Index(zone, doi)
		if idx < 0 {
			return nil
		}
		zone = zone[idx+len(doi):]
	}
	return nil
}

// Title resolves the paper title from the first lines of the first page.
// Single lines are tried first, then 2-4 lines merged with ": " and then with
// spaces, finally the longest acceptable line.
func (e *Extractor) Title(firstPage string) *models.Candidate {
	lines := titleLines(firstPage, 8)
	if len(lines) == 0 {
		return nil
	}
	mk := func(v string, conf float64) *models.Candidate {
		return &models.Candidate{Field: models.FieldTitle, Value: v, Source: models.SourceHeuristic, Confidence: conf}
	}

	head := lines[:min(4, len(lines))]
	for _, ln := range head {
		// banners such as "Ecology Letters, 2021" are too short to be titles
		if titleOK(ln) && len(strings.Fields(ln)) >= 4 {
			return mk(ln, 0.6)
		}
	}
	for _, sep := range []struct {
		join string
		conf float64
	}{{": ", 0.56}, {" ", 0.54}} {
		for n := 2; n <= len(head); n++ {
			cand := strings.Join(head[:n], sep.join)
			if titleOK(cand) {
				return mk(cand, sep.conf)
			}
		}
	}
	best := ""
	for _, ln := range lines {
		if len(ln) > len(best) {
			best = ln
		}
	}
	if best != "" && titleOK(best) {
		return mk(best, 0.5)
	}
	return nil
}

func titleOK(s string) bool {
	return validation.Title(s) && !strings.HasSuffix(s, ".")
}

func titleLines(page string, max int) []string {
	var lines []string
	for _, raw := range strings.Split(page, "\n") {
		ln := normalizer.Flatten(raw)
		if ln == "" {
			if len(lines) >= 2 {
				break
			}
			continue
		}
		if affiliationRe.MatchString(ln) {
			break
		}
		lines = append(lines, ln)
		if len(lines) >= max {
			break
		}
	}
	return lines
}

// License finds a named license inside a statement.
func (e *Extractor) License(statement string, field models.Field) *models.Candidate {
	if !field.IsLicense() {
		return nil
	}
	name := validation.FindLicense(statement)
	if name == "" {
		return nil
	}
	return &models.Candidate{Field: field, Value: name, Source: models.SourceHeuristic, Confidence: LicenseConfidence}
}

// ExpandStatement widens a statement found in text to the whole paragraph
// around it, without the heading, as long as the paragraph stays within
// maxChars. The statement is returned unchanged when it cannot be located.
func (e *Extractor) ExpandStatement(text, statement string, maxChars int) string {
	key := strings.ToLower(flattenLines([]string{statement}))
	if key == "" {
		return statement
	}
	for _, lines := range splitLines(text) {
		body := make([]string, 0, len(lines))
		for i, line := range lines {
			if i == 0 || isHeadingLine(line, lines[i-1]) {
				if m := headingMatch(line); m != nil {
					if m[3] != "" {
						body = append(body, m[3])
					}
					continue
				}
				if sectionHeading(line) {
					continue
				}
			}
			body = append(body, line)
		}
		para := flattenLines(body)
		if !strings.Contains(strings.ToLower(para), key) {
			continue
		}
		if len(para) > maxChars || len(para) <= len(statement) {
			return statement
		}
		return para
	}
	return statement
}

func headingMatch(line string) []string {
	for _, re := range []*regexp.Regexp{dataHeadingRe, codeHeadingRe} {
		if m := re.FindStringSubmatch(line); m != nil && acceptHeading(m[2], m[3]) {
			return m
		}
	}
	return nil
}
