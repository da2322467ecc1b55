package htmltext

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sangitam/krithi-backend/internal/logger"
)

// Fetcher hands the pipeline clean text for a source document. The pipeline
// only depends on this interface; tests substitute a stub.
type Fetcher interface {
	FetchText(ctx context.Context, sourceURL, sourceFormat string) (string, error)
}

// HTTPFetcher fetches a document over HTTP and strips blog HTML down to the
// post body text. Plain-text formats pass through untouched.
type HTTPFetcher struct {
	client *http.Client
	log    *logger.Logger
}

func NewHTTPFetcher(baseLog *logger.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    baseLog.With("component", "HTMLTextFetcher"),
	}
}

func (f *HTTPFetcher) FetchText(ctx context.Context, sourceURL, sourceFormat string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", sourceURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", sourceURL, resp.StatusCode)
	}

	if sourceFormat != "blog_html" {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", sourceURL, err)
		}
		return string(raw), nil
	}
	return ExtractText(resp.Body)
}

// ExtractText reduces an HTML document to line-oriented text. Block elements
// become line breaks so the structural parser sees one lyric line per line.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, nav, header, footer, iframe").Remove()

	body := doc.Find("article, .post-body, .entry-content, #content").First()
	if body.Length() == 0 {
		body = doc.Find("body").First()
	}
	if body.Length() == 0 {
		return "", nil
	}

	var b strings.Builder
	body.Find("br").ReplaceWithHtml("\n")
	// Only leaf-level containers; walking nested divs would duplicate text.
	body.Find("p, li, h1, h2, h3, h4").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString("\n")
	})
	if b.Len() == 0 {
		return strings.TrimSpace(body.Text()), nil
	}
	return b.String(), nil
}
