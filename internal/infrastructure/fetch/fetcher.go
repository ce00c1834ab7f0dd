package fetch

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"offerwatch/internal/ports"
)

const userAgent = "Mozilla/5.0 (compatible; offerwatch/1.0)"

var blankLines = regexp.MustCompile(`\n{3,}`)

// Fetcher retrieves a page and reduces it to the text the extractor needs:
// scripts, styles and boilerplate stripped, href targets of order-style links
// kept inline so the extractor can still produce order URLs.
type Fetcher struct {
	client *http.Client
}

var _ ports.PageFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; a nil client gets a default with the
// given timeout.
func NewFetcher(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{client: client}
}

// Fetch GETs the URL (redirects followed) and returns trimmed page text.
// Any non-200 status is an error; the caller skips the pass on failure.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", pageURL, err)
	}

	return Trim(doc), nil
}

// Trim converts a parsed document into extractor-ready text.
func Trim(doc *goquery.Document) string {
	doc.Find("script, style, noscript, iframe, svg").Remove()

	// Inline link targets so order URLs survive the HTML-to-text step.
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		a.SetText(strings.TrimSpace(a.Text()) + " [" + href + "]")
	})

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n\n"))
}
