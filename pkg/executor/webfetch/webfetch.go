package webfetch

import (
    "context"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "golang.org/x/net/html"
)

// Fetcher retrieves a web page and reduces it to plain text suitable for
// inclusion in a prompt. It is the in-process equivalent of the web-render
// step a non-deterministic task performs before model inference.
type Fetcher struct {
    client  *http.Client
    maxText int
}

// Options tunes a Fetcher. Zero values select the defaults.
type Options struct {
    Timeout   time.Duration // HTTP timeout, default 15s
    MaxText   int           // cap on extracted text length, default 100k
    Transport http.RoundTripper
}

// New constructs a Fetcher.
func New(opts Options) *Fetcher {
    if opts.Timeout <= 0 { opts.Timeout = 15 * time.Second }
    if opts.MaxText <= 0 { opts.MaxText = 100_000 }
    return &Fetcher{
        client:  &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
        maxText: opts.MaxText,
    }
}

// skipped elements contribute no text
var skipTags = map[string]bool{
    "script": true, "style": true, "noscript": true, "svg": true,
    "iframe": true, "head": true, "template": true,
}

// Render fetches url and returns the page's visible text with whitespace
// collapsed, truncated to the configured cap.
func (f *Fetcher) Render(ctx context.Context, url string) (string, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
    if err != nil {
        return "", fmt.Errorf("webfetch: bad url %q: %w", url, err)
    }
    resp, err := f.client.Do(req)
    if err != nil {
        return "", fmt.Errorf("webfetch: get %q: %w", url, err)
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return "", fmt.Errorf("webfetch: get %q: status %d", url, resp.StatusCode)
    }
    doc, err := html.Parse(io.LimitReader(resp.Body, 4<<20))
    if err != nil {
        return "", fmt.Errorf("webfetch: parse %q: %w", url, err)
    }
    var sb strings.Builder
    collectText(doc, &sb)
    text := strings.Join(strings.Fields(sb.String()), " ")
    if len(text) > f.maxText {
        text = text[:f.maxText]
    }
    return text, nil
}

func collectText(n *html.Node, sb *strings.Builder) {
    if n.Type == html.ElementNode && skipTags[n.Data] {
        return
    }
    if n.Type == html.TextNode {
        sb.WriteString(n.Data)
        sb.WriteByte(' ')
    }
    for c := n.FirstChild; c != nil; c = c.NextSibling {
        collectText(c, sb)
    }
}
