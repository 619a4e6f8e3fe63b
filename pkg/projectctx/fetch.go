package projectctx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher downloads remote context documents over HTTP. GitHub blob URLs
// are rewritten to raw content URLs before fetching, and authentication
// uses an optional bearer token for private repositories.
type Fetcher struct {
	httpClient *http.Client
	token      string
	maxBytes   int64
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. token may be empty (public repos only,
// lower rate limits). maxBytes caps how much of a response body is read.
func NewFetcher(token string, maxBytes int) *Fetcher {
	limit := int64(maxBytes)
	if limit <= 0 {
		limit = 1 << 20
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
		maxBytes:   limit,
		logger:     slog.Default().With("component", "projectctx"),
	}
}

// Fetch downloads the document at docURL and returns its text. HTML
// responses are reduced to their visible text; anything else is returned
// as-is up to the configured byte cap.
func (f *Fetcher) Fetch(ctx context.Context, docURL string) (string, error) {
	downloadURL := ConvertToRawURL(docURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch context document from %s: %w", downloadURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned HTTP %d for %s", resp.StatusCode, downloadURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	f.logger.Debug("Fetched context document", "url", downloadURL, "bytes", len(body))

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		text, err := htmlToText(string(body))
		if err != nil {
			return "", fmt.Errorf("extract text from HTML at %s: %w", downloadURL, err)
		}
		return text, nil
	}

	return string(body), nil
}

// htmlToText reduces an HTML document to its visible text. Script, style,
// and page-chrome elements are dropped; the <main> element is preferred
// over <body> when present.
func htmlToText(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript, nav, header, footer").Remove()

	sel := doc.Find("main")
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}
	if sel.Length() == 0 {
		return collapseText(doc.Text()), nil
	}
	return collapseText(sel.Text()), nil
}

// collapseText squeezes the whitespace left behind by HTML text extraction
// into readable lines.
func collapseText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
