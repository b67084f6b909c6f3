// Package extract tests extraction rules against live article pages
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"maps"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"

	"github.com/umputun/newsdigest/pkg/config"
	"github.com/umputun/newsdigest/pkg/domain"
)

//go:generate moq -out mocks/rule_source.go -pkg mocks -skip-ensure -fmt goimports . RuleSource

// RuleSource provides saved rules by origin
type RuleSource interface {
	GetRule(ctx context.Context, origin string) (domain.RuleConfig, bool, error)
}

// metaProbes are checked in order when the rule itself finds no date
var metaProbes = []struct{ selector, attr string }{
	{`meta[property="article:published_time"]`, "content"},
	{`meta[property="og:published_time"]`, "content"},
	{`meta[name="date"]`, "content"},
	{`meta[name="pubdate"]`, "content"},
	{`meta[name="original-publish-date"]`, "content"},
	{`[itemprop="datePublished"]`, ""},
}

// dataLayerDate finds a publish date assignment inside a tracking data layer script
var dataLayerDate = regexp.MustCompile(`["']?(?:datePublished|publishDate|publish_date|pubDate|articlePublishedDate)["']?\s*[:=]\s*["']([^"']+)["']`)

// Extractor fetches article pages and applies extraction rules to them
type Extractor struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	timeout   time.Duration
	rules     RuleSource
	policy    *bluemonday.Policy
}

// New makes an extractor. Rules is optional, without it an empty rule extracts only page metadata.
func New(cfg config.ExtractionConfig, rules RuleSource) *Extractor {
	return &Extractor{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodySize,
		timeout:   cfg.Timeout,
		rules:     rules,
		policy:    bluemonday.StrictPolicy(),
	}
}

// TestExtraction fetches the page and applies the rule to it. Page level problems are reported
// in the result's Error, the returned error is only set when the extraction could not run at all.
func (e *Extractor) TestExtraction(ctx context.Context, pageURL string, rule domain.RuleConfig) (domain.ExtractionResult, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.ExtractionResult{Error: fmt.Sprintf("invalid url %q", pageURL)}, nil
	}

	if rule.Empty() && e.rules != nil {
		saved, ok, err := e.rules.GetRule(ctx, domain.Origin(pageURL))
		if err != nil {
			return domain.ExtractionResult{}, fmt.Errorf("get saved rule: %w", err)
		}
		if ok {
			log.Printf("[DEBUG] using saved rule for %s", domain.Origin(pageURL))
			rule = saved
		}
	}

	var dateRe *regexp.Regexp
	if rule.DateRegex != "" {
		if dateRe, err = regexp.Compile(rule.DateRegex); err != nil {
			return domain.ExtractionResult{Error: fmt.Sprintf("invalid date regex: %v", err)}, nil
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, contentType, err := e.fetch(ctx, u.String())
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return domain.ExtractionResult{}, fmt.Errorf("fetch %s: %w", pageURL, err)
		}
		return domain.ExtractionResult{Error: err.Error()}, nil
	}

	decoded, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return domain.ExtractionResult{Error: fmt.Sprintf("decode page: %v", err)}, nil
	}
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return domain.ExtractionResult{Error: fmt.Sprintf("parse page: %v", err)}, nil
	}

	res := domain.ExtractionResult{
		Date:  e.ruleDate(doc, rule, dateRe),
		Title: e.ruleTitle(doc, rule),
	}
	if res.Date == "" {
		res.Date = metaDate(doc)
	}

	needTitle := res.Title == "" && len(rule.TitleSelectors) > 0
	if res.Date == "" || needTitle {
		meta := e.pageMetadata(raw, u)
		if res.Date == "" && !meta.Date.IsZero() {
			res.Date = meta.Date.Format(time.RFC3339)
		}
		if needTitle {
			res.Title = e.clean(meta.Title)
		}
		if needTitle && res.Title == "" {
			res.Title = e.clean(doc.Find("title").First().Text())
		}
	}

	if res.Date == "" && res.Title == "" {
		res.Error = "no date or title found"
	}
	return res, nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) (body []byte, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	setBrowserHeaders(req, e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	limit := e.maxBody
	if limit <= 0 {
		limit = 5 * 1024 * 1024
	}
	body, err = io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read page: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("page larger than %d bytes", limit)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// ruleDate applies the rule's own date sources: selectors, regex, json-ld and data layer
func (e *Extractor) ruleDate(doc *goquery.Document, rule domain.RuleConfig, re *regexp.Regexp) string {
	for _, sel := range rule.DateSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if v := matchDate(re, nodeValue(s)); v != "" {
			return v
		}
	}
	if re != nil && len(rule.DateSelectors) == 0 {
		if v := matchDate(re, doc.Find("body").Text()); v != "" {
			return v
		}
	}

	if rule.UseJSONLD {
		if v := jsonLDDate(doc); v != "" {
			return v
		}
	}

	if rule.UseDataLayer {
		name := rule.DataLayerVar
		if name == "" {
			name = "dataLayer"
		}
		var found string
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := s.Text()
			if !strings.Contains(text, name) {
				return true
			}
			if m := dataLayerDate.FindStringSubmatch(text); m != nil {
				found = strings.TrimSpace(m[1])
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func (e *Extractor) ruleTitle(doc *goquery.Document, rule domain.RuleConfig) string {
	for _, sel := range rule.TitleSelectors {
		if title := e.clean(doc.Find(sel).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

// pageMetadata runs trafilatura over the raw page, only its metadata is used
func (e *Extractor) pageMetadata(raw []byte, u *url.URL) trafilatura.Metadata {
	opts := trafilatura.Options{
		EnableFallback:  false,
		ExcludeComments: true,
		OriginalURL:     u,
	}
	res, err := trafilatura.Extract(bytes.NewReader(raw), opts)
	if err != nil || res == nil {
		return trafilatura.Metadata{}
	}
	return res.Metadata
}

// clean strips markup and collapses whitespace
func (e *Extractor) clean(s string) string {
	s = html.UnescapeString(e.policy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func metaDate(doc *goquery.Document) string {
	for _, p := range metaProbes {
		s := doc.Find(p.selector).First()
		if s.Length() == 0 {
			continue
		}
		var v string
		if p.attr != "" {
			v, _ = s.Attr(p.attr)
		} else {
			v = nodeValue(s)
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// nodeValue prefers machine readable attributes over the visible text
func nodeValue(s *goquery.Selection) string {
	for _, attr := range []string{"datetime", "content"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.Join(strings.Fields(s.Text()), " ")
}

// matchDate returns the first group of the regex match, or the whole match without groups
func matchDate(re *regexp.Regexp, text string) string {
	if re == nil {
		return strings.TrimSpace(text)
	}
	m := re.FindStringSubmatch(text)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return strings.TrimSpace(m[1])
	default:
		return strings.TrimSpace(m[0])
	}
}

func jsonLDDate(doc *goquery.Document) string {
	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return true
		}
		found = findKey(v, "datePublished")
		return found == ""
	})
	return found
}

// findKey walks decoded json depth first. A node's own key wins, then its @graph, then
// arrays in order and other keys sorted by name, so the same document always gives the same date.
func findKey(v any, key string) string {
	switch val := v.(type) {
	case map[string]any:
		if s, ok := val[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		if s := findKey(val["@graph"], key); s != "" {
			return s
		}
		for _, k := range slices.Sorted(maps.Keys(val)) {
			if k == "@graph" {
				continue
			}
			if s := findKey(val[k], key); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range val {
			if s := findKey(child, key); s != "" {
				return s
			}
		}
	}
	return ""
}
