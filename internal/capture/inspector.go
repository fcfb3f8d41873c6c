package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/adalign/backend/pkg/utils"
)

const (
	maxHeadings = 5
	maxCTAs     = 5
	maxPageSize = 2 << 20
)

// PageSummary is the text a visitor sees first on a landing page.
type PageSummary struct {
	URL         string
	Title       string
	Description string
	Headings    []string
	CTAs        []string
	HTTPS       bool
}

func (s *PageSummary) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	if s.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", s.Title)
	}
	if s.Description != "" {
		fmt.Fprintf(&b, "Meta description: %s\n", s.Description)
	}
	if len(s.Headings) > 0 {
		fmt.Fprintf(&b, "Headings: %s\n", strings.Join(s.Headings, " | "))
	}
	if len(s.CTAs) > 0 {
		fmt.Fprintf(&b, "Calls to action: %s\n", strings.Join(s.CTAs, " | "))
	}
	return strings.TrimSpace(b.String())
}

// Inspector fetches landing-page HTML and extracts a PageSummary. It only
// connects to public addresses.
type Inspector struct {
	client    *http.Client
	userAgent string
}

func NewInspector(timeout time.Duration) *Inspector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Inspector{
		client:    utils.NewPublicHTTPClient(timeout),
		userAgent: "Mozilla/5.0 (compatible; AdAlignBot/1.0)",
	}
}

func (i *Inspector) Inspect(ctx context.Context, pageURL string) (*PageSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", i.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	summary := &PageSummary{
		URL:   pageURL,
		Title: cleanText(doc.Find("title").First().Text()),
		HTTPS: resp.Request != nil && resp.Request.URL.Scheme == "https",
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		summary.Description = cleanText(desc)
	} else if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		summary.Description = cleanText(desc)
	}

	doc.Find("h1, h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := cleanText(s.Text()); text != "" {
			summary.Headings = append(summary.Headings, text)
		}
		return len(summary.Headings) < maxHeadings
	})

	seen := map[string]bool{}
	doc.Find(`button, a.btn, a.button, a[class*="cta"], a[role="button"], input[type="submit"]`).
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := cleanText(s.Text())
			if text == "" {
				text = cleanText(s.AttrOr("value", ""))
			}
			if text != "" && !seen[text] {
				seen[text] = true
				summary.CTAs = append(summary.CTAs, text)
			}
			return len(summary.CTAs) < maxCTAs
		})

	return summary, nil
}

func cleanText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200])
	}
	return s
}
