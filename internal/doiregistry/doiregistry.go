// Package doiregistry looks DOIs up in the Crossref REST API. Lookups are
// advisory: they raise confidence in an extracted DOI but never supply
// field values.
package doiregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ecoopen-extract/internal/validation"
)

const (
	DefaultBaseURL   = "https://api.crossref.org"
	DefaultUserAgent = "ecoopen-extract/1.0"
	defaultTimeout   = 10 * time.Second
	defaultCacheTTL  = 24 * time.Hour
)

// Record is the subset of a Crossref work the pipeline cares about.
type Record struct {
	DOI       string
	Title     string
	Container string
	Year      int
}

type Client struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration
	agent   string

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	record  *Record
	expires time.Time
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) { c.ttl = d }
}

// WithUserAgent sets the User-Agent; Crossref asks polite clients to
// include a contact address, see UserAgent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.agent = ua
		}
	}
}

// UserAgent returns the default User-Agent with mailto appended when set.
func UserAgent(mailto string) string {
	if mailto = strings.TrimSpace(mailto); mailto == "" {
		return DefaultUserAgent
	}
	return DefaultUserAgent + " (mailto:" + mailto + ")"
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		ttl:     defaultCacheTTL,
		agent:   DefaultUserAgent,
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type worksResponse struct {
	Message struct {
		DOI            string   `json:"DOI"`
		Title          []string `json:"title"`
		ContainerTitle []string `json:"container-title"`
		Issued         struct {
			DateParts [][]int `json:"date-parts"`
		} `json:"issued"`
	} `json:"message"`
}

// Lookup resolves doi. An unknown DOI returns (nil, nil); both hits and
// misses are cached for the configured TTL.
func (c *Client) Lookup(ctx context.Context, doi string) (*Record, error) {
	canonical, ok := validation.DOI(doi)
	if !ok {
		return nil, fmt.Errorf("invalid DOI %q", doi)
	}
	key := strings.ToLower(canonical)

	if rec, hit := c.cached(key); hit {
		return rec, nil
	}

	endpoint := c.baseURL + "/works/" + url.PathEscape(canonical)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crossref request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.store(key, nil)
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("crossref request failed: %d", resp.StatusCode)
	}

	var body worksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode crossref response: %w", err)
	}

	rec := &Record{DOI: canonical}
	if body.Message.DOI != "" {
		rec.DOI = body.Message.DOI
	}
	if len(body.Message.Title) > 0 {
		rec.Title = strings.Join(strings.Fields(body.Message.Title[0]), " ")
	}
	if len(body.Message.ContainerTitle) > 0 {
		rec.Container = body.Message.ContainerTitle[0]
	}
	if dp := body.Message.Issued.DateParts; len(dp) > 0 && len(dp[0]) > 0 {
		rec.Year = dp[0][0]
	}

	log.Debug().Str("doi", rec.DOI).Str("title", rec.Title).Msg("Crossref hit")
	c.store(key, rec)
	return rec, nil
}

func (c *Client) cached(key string) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.cache, key)
		return nil, false
	}
	return e.record, true
}

func (c *Client) store(key string, rec *Record) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{record: rec, expires: c.now().Add(c.ttl)}
}

// TitleSimilarity is the Jaccard similarity of the word sets (words of at
// least three letters) of a and b.
func TitleSimilarity(a, b string) float64 {
	sa, sb := titleTokens(a), titleTokens(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func titleTokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	}) {
		if len([]rune(f)) >= 3 {
			out[f] = struct{}{}
		}
	}
	return out
}
