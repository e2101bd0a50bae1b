// Package linkrepair rebuilds repository links mangled by PDF text
// extraction and keeps only links to known data/code/DOI hosts.
package linkrepair

import (
	"cmp"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"ecoopen-extract/internal/validation"
)

type Kind string

const (
	KindData  Kind = "data"
	KindCode  Kind = "code"
	KindDOI   Kind = "doi"
	KindOther Kind = "other"
)

var dataHosts = []string{
	"zenodo.org",
	"figshare.com",
	"datadryad.org",
	"dryad.org",
	"osf.io",
	"pangaea.de",
	"data.mendeley.com",
	"openneuro.org",
	"dataverse.org",
	"dataverse.harvard.edu",
	"ebi.ac.uk",
	"ncbi.nlm.nih.gov",
	"ega-archive.org",
	"purl.org",
}

var codeHosts = []string{
	"github.com",
	"gitlab.com",
	"bitbucket.org",
	"codeocean.com",
	"huggingface.co",
	"codeberg.org",
	"sourceforge.net",
}

var doiHosts = []string{"doi.org", "dx.doi.org"}

var (
	urlInTextRe   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'\]\[{}|\\^` + "`" + `]+`)
	bareDOIRe     = regexp.MustCompile(`(?i)\b(?:doi:\s*)?(10\.\d{4,9}/[^\s"<>,;]+)`)
	markupRe      = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	schemeFixRe   = regexp.MustCompile(`(?i)^(https?):/*`)
	multiSlashRe  = regexp.MustCompile(`/{2,}`)
	brokenLineRe  = regexp.MustCompile(`(?i)(https?://\S*[/\-_=?&])\n(\S)`)
	brokenDotRe   = regexp.MustCompile(`((?i:https?)://\S*\.)\n([\p{Ll}\d])`)
	trailingChars = ".,;:!?'\"*"
)

// Repair cleans each URL, drops anything that is not on an allowed host and
// removes duplicates (case- and trailing-slash-insensitive). The first
// occurrence wins and relative order is kept.
func Repair(urls []string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, raw := range urls {
		u, ok := Clean(raw)
		if !ok || !Allowed(u) {
			continue
		}
		key := dedupeKey(u)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Clean rebuilds a single URL: whitespace from line wraps is removed,
// surrounding markup and trailing punctuation are stripped, www. and DOI
// forms get a scheme, the host is lower-cased without "www." and duplicate
// path slashes collapse.
func Clean(raw string) (string, bool) {
	s := markupRe.ReplaceAllString(raw, "")
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimLeft(s, "<([{\"'")
	s = trimTrailing(s)
	if s == "" {
		return "", false
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "www."):
		s = "https://" + s
	case strings.HasPrefix(lower, "doi:"):
		s = "https://doi.org/" + strings.TrimSpace(s[4:])
	case strings.HasPrefix(lower, "10."):
		if doi, ok := validation.DOI(s); ok {
			s = "https://doi.org/" + doi
		}
	}
	s = schemeFixRe.ReplaceAllString(s, "${1}://")

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Path = multiSlashRe.ReplaceAllString(u.Path, "/")
	if u.RawPath != "" {
		u.RawPath = multiSlashRe.ReplaceAllString(u.RawPath, "/")
	}

	rebuilt := u.String()
	if !validation.URL(rebuilt) {
		return "", false
	}
	return rebuilt, true
}

// trimTrailing drops trailing punctuation and closing brackets that are not
// balanced inside the URL.
func trimTrailing(s string) string {
	for s != "" {
		last := s[len(s)-1]
		switch {
		case strings.IndexByte(trailingChars, last) >= 0:
			s = s[:len(s)-1]
		case last == ')' && strings.Count(s, "(") < strings.Count(s, ")"):
			s = s[:len(s)-1]
		case last == ']' && strings.Count(s, "[") < strings.Count(s, "]"):
			s = s[:len(s)-1]
		case last == '}' || last == '>':
			s = s[:len(s)-1]
		default:
			return s
		}
	}
	return s
}

func dedupeKey(u string) string {
	return strings.TrimRight(strings.ToLower(u), "/")
}

// Host returns the lower-cased host of u without "www.".
func Host(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// Allowed reports whether u points at a known repository or DOI resolver.
func Allowed(u string) bool {
	return Classify(u) != KindOther
}

// Classify maps a URL to the kind of host it points at.
func Classify(u string) Kind {
	host := Host(u)
	if host == "" {
		return KindOther
	}
	switch {
	case matchHost(host, doiHosts):
		return KindDOI
	case matchHost(host, dataHosts):
		return KindData
	case matchHost(host, codeHosts):
		return KindCode
	}
	return KindOther
}

func matchHost(host string, hosts []string) bool {
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// JoinWrapped rejoins URLs that a line wrap split after a separator
// character. A URL ending in "." only continues when the next line starts
// with a lower-case letter or a digit, so sentence ends stay apart.
func JoinWrapped(text string) string {
	for {
		next := brokenLineRe.ReplaceAllString(text, "$1$2")
		next = brokenDotRe.ReplaceAllString(next, "$1$2")
		if next == text {
			return text
		}
		text = next
	}
}

type match struct {
	offset int
	link   string
}

// FromText harvests URL candidates from free text in order of appearance.
// Wrapped URLs are joined first and bare DOIs become doi.org links.
func FromText(text string) []string {
	if text == "" {
		return nil
	}
	joined := JoinWrapped(text)

	var found []match
	masked := []byte(joined)
	for _, loc := range urlInTextRe.FindAllStringIndex(joined, -1) {
		found = append(found, match{loc[0], joined[loc[0]:loc[1]]})
		for i := loc[0]; i < loc[1]; i++ {
			masked[i] = ' '
		}
	}
	for _, loc := range bareDOIRe.FindAllSubmatchIndex(masked, -1) {
		found = append(found, match{loc[0], "https://doi.org/" + joined[loc[2]:loc[3]]})
	}
	if len(found) == 0 {
		return nil
	}
	slices.SortStableFunc(found, func(a, b match) int { return cmp.Compare(a.offset, b.offset) })

	out := make([]string, len(found))
	for i, m := range found {
		out[i] = m.link
	}
	return out
}
