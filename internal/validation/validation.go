// Package validation holds the field checks that decide whether an extracted
// value may populate an AnalysisResult.
package validation

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	doiPatternRe = regexp.MustCompile(`^10\.\S+/\S+`)
	doiStrictRe  = regexp.MustCompile(`^10\.\d{4,9}/[^\s"<>]+$`)
	doiPrefixRe  = regexp.MustCompile(`(?i)^(?:doi:\s*|https?://(?:dx\.)?doi\.org/)`)
	doiFindRe    = regexp.MustCompile(`(?i)(?:doi:\s*)?(?:https?://(?:dx\.)?doi\.org/)?(10\.\d{4,9}/[^\s"<>]+)`)
	doiTrailRe   = regexp.MustCompile(`[.,;:)\]}>'"]+$`)

	urlShapeRe = regexp.MustCompile(`^https?://[a-zA-Z0-9][\w\-.]*\.[a-zA-Z]{2,}(:\d+)?(/\S*)?$`)

	titleBoilerplateRe = regexp.MustCompile(`(?i)\b(abstract|introduction|copyright|license|keywords|all rights reserved|journal of|proceedings of|vol\.|volume \d|issn|received|accepted|published online|availability statement|data availability|code availability|acknowledg\w*|references|funding|supplementary information)\b`)

	licenseNameRe = regexp.MustCompile(`(?i)\b(cc[- ]?by(?:[- ](?:sa|nc|nd))*(?:[- ]\d\.\d)?|cc0(?:[- ]1\.0)?|creative commons[\w .\-]*?(?:licen[cs]e|\d\.\d|zero)|mit licen[cs]e|mit|[al]?gpl(?:-?v?\d(?:\.\d)?)?|apache(?: licen[cs]e)?(?:,? (?:version )?2\.0)?|bsd(?:[- ]\d-clause)?|public domain|odbl|mozilla public licen[cs]e(?: 2\.0)?)\b`)
	licenseRe     = regexp.MustCompile(`(?i)\blicen[cs]e[ds]?\b`)

	datasetDOIPrefixes = []string{"10.5281", "10.6084", "10.5061", "10.17605", "10.1594", "10.7910", "10.18112", "10.25740"}

	availabilityVerbs = []string{"avail", "accessible", "access", "request", "provided", "supplied", "deposited", "archived", "shared", "found at", "obtained", "download", "hosted", "released"}
	dataTerms         = []string{"data", "dataset", "supplementary", "repository", "zenodo", "dryad", "figshare", "osf", "dataverse", "pangaea", "archive", "genbank", "accession"}
	codeTerms         = []string{"code", "software", "script", "analysis", "github", "gitlab", "bitbucket", "source", "notebook", "package", "program"}
)

// DOI canonicalizes s and reports whether it is a DOI. Accepted forms include
// bare "10.x/y", "doi:10.x/y" and doi.org URLs; trailing punctuation is
// dropped.
func DOI(s string) (string, bool) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "'\"`"))
	s = doiPrefixRe.ReplaceAllString(s, "")
	s = doiTrailRe.ReplaceAllString(s, "")
	if doiStrictRe.MatchString(s) {
		return s, true
	}
	if m := doiPatternRe.FindString(s); m != "" && m == s {
		return s, true
	}
	return "", false
}

// FindDOI returns the first DOI mentioned in text.
func FindDOI(text string) (string, bool) {
	m := doiFindRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return DOI(m[1])
}

// MentionsDOI reports whether text cites doi itself, not a longer DOI that
// merely starts with it.
func MentionsDOI(text, doi string) bool {
	want, ok := DOI(doi)
	if !ok {
		return false
	}
	for _, m := range doiFindRe.FindAllStringSubmatch(text, -1) {
		if got, ok := DOI(m[1]); ok && strings.EqualFold(got, want) {
			return true
		}
	}
	return false
}

// SameDOI compares two DOIs after canonicalization.
func SameDOI(a, b string) bool {
	ca, okA := DOI(a)
	cb, okB := DOI(b)
	return okA && okB && strings.EqualFold(ca, cb)
}

// URL reports whether s is an absolute http(s) URL with a host.
func URL(s string) bool {
	if len(s) < 10 || strings.ContainsAny(s, " \t\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return urlShapeRe.MatchString(s)
}

// Title reports whether s looks like a real paper title rather than a
// heading, banner or author line.
func Title(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 10 || len(s) > 300 {
		return false
	}
	words := strings.Fields(s)
	if len(words) < 2 || len(words) > 45 {
		return false
	}
	if titleBoilerplateRe.MatchString(s) {
		return false
	}
	if strings.Contains(s, "://") || strings.Contains(s, "@") {
		return false
	}
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters*2 >= len([]rune(s))
}

// HasAvailabilityVocabulary reports whether text talks about availability of
// data (data=true) or code (data=false).
func HasAvailabilityVocabulary(text string, data bool) bool {
	lower := strings.ToLower(text)
	if !containsAny(lower, availabilityVerbs) {
		return false
	}
	if data {
		return containsAny(lower, dataTerms)
	}
	return containsAny(lower, codeTerms)
}

// HasLicenseVocabulary reports whether text names a license.
func HasLicenseVocabulary(text string) bool {
	return licenseNameRe.MatchString(text) || licenseRe.MatchString(text)
}

// FindLicense returns the first named license (CC BY 4.0, MIT, GPL-3.0, ...)
// mentioned in text.
func FindLicense(text string) string {
	return strings.TrimSpace(licenseNameRe.FindString(text))
}

// IsDatasetDOI reports whether doi was minted by a data repository
// (Zenodo, Figshare, Dryad, OSF, PANGAEA, Dataverse, OpenNeuro).
func IsDatasetDOI(doi string) bool {
	doi = strings.ToLower(strings.TrimSpace(doi))
	for _, p := range datasetDOIPrefixes {
		if strings.HasPrefix(doi, p+"/") {
			return true
		}
	}
	return false
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

var (
	tokenRe       = regexp.MustCompile(`[\p{L}\p{N}]+`)
	inlineURLRe   = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+|10\.\d{4,9}/\S+`)
	quoteReplacer = strings.NewReplacer("\u201c", `"`, "\u201d", `"`, "\u2018", "'", "\u2019", "'", "\u2013", "-", "\u2014", "-", " ,", ",", " .", ".", " ;", ";", " :", ":")
)

// Canonical lowercases s, folds typographic quotes and dashes and collapses
// whitespace.
func Canonical(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return quoteReplacer.Replace(s)
}

// containsWord reports whether sub occurs in s without being glued to a
// letter or digit on either side, so "mit" is not found in "submitted".
func containsWord(s, sub string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(sub)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		from = start + 1
	}
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// squash keeps only letters and digits so that spacing and hyphenation
// repairs do not break containment checks.
func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Overlaps reports whether one value contains the other on word boundaries
// after canonicalization. "Soil carbon" overlaps "Soil carbon: a synthesis"
// but "Soil carb" does not.
func Overlaps(a, b string) bool {
	ca, cb := Canonical(a), Canonical(b)
	if ca == "" || cb == "" {
		return false
	}
	return containsWord(ca, cb) || containsWord(cb, ca)
}

// fillerWords may be dropped or added by a near-verbatim quote without
// changing its meaning.
var fillerWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "by": {}, "with": {}, "from": {}, "as": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "its": {}, "their": {},
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "nor": {}, "neither": {}, "cannot": {},
	"without": {}, "non": {}, "none": {},
}

// Grounded reports whether value is a verbatim or near-verbatim span of
// context. Outside of exact spans every content word of value must occur in
// context, either as is or split or joined the way line-wrap hyphenation
// leaves it. Negations must also keep a neighbouring word, so "not"
// inserted into a quote is rejected.
func Grounded(value, context string) bool {
	v, c := Canonical(value), Canonical(context)
	if v == "" || c == "" {
		return false
	}
	if containsWord(c, v) {
		return true
	}

	sv, sc := squash(v), squash(c)
	if len(sv) >= 8 && strings.Contains(sc, sv) {
		return true
	}

	for _, ref := range inlineURLRe.FindAllString(v, -1) {
		if !strings.Contains(sc, squash(ref)) {
			return false
		}
	}

	tokens := tokenRe.FindAllString(v, -1)
	if len(tokens) < 4 {
		return false
	}
	ctxTokens := tokenRe.FindAllString(c, -1)
	known := make(map[string]struct{}, 2*len(ctxTokens))
	pairs := make(map[[2]string]struct{}, len(ctxTokens))
	for i, tok := range ctxTokens {
		known[tok] = struct{}{}
		if i > 0 {
			known[ctxTokens[i-1]+tok] = struct{}{}
			pairs[[2]string{ctxTokens[i-1], tok}] = struct{}{}
		}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if _, neg := negations[tok]; neg && !negationKept(tokens, i, pairs) {
			return false
		}
		if _, ok := known[tok]; ok {
			continue
		}
		if i+1 < len(tokens) {
			if _, ok := known[tok+tokens[i+1]]; ok {
				i++
				continue
			}
		}
		if _, ok := fillerWords[tok]; ok {
			continue
		}
		return false
	}
	return true
}

func negationKept(tokens []string, i int, pairs map[[2]string]struct{}) bool {
	if i > 0 {
		if _, ok := pairs[[2]string{tokens[i-1], tokens[i]}]; ok {
			return true
		}
	}
	if i+1 < len(tokens) {
		if _, ok := pairs[[2]string{tokens[i], tokens[i+1]}]; ok {
			return true
		}
	}
	return false
}
