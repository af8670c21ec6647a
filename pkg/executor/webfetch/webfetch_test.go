package webfetch

import (
    "context"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
)

const page = `<!doctype html>
<html>
  <head><title>ignored</title><style>body { color: red }</style></head>
  <body>
    <script>var hidden = "never";</script>
    <h1>Tower Facts</h1>
    <p>The   tower is
       330 metres tall.</p>
    <noscript>also hidden</noscript>
  </body>
</html>`

func TestRender_ExtractsVisibleText(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/html")
        _, _ = w.Write([]byte(page))
    }))
    defer srv.Close()

    f := New(Options{})
    text, err := f.Render(context.Background(), srv.URL)
    if err != nil {
        t.Fatalf("render: %v", err)
    }
    if !strings.Contains(text, "Tower Facts") || !strings.Contains(text, "The tower is 330 metres tall.") {
        t.Fatalf("missing visible text: %q", text)
    }
    for _, hidden := range []string{"hidden", "color: red", "ignored"} {
        if strings.Contains(text, hidden) {
            t.Fatalf("non-visible content leaked: %q in %q", hidden, text)
        }
    }
}

func TestRender_Truncates(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte("<p>" + strings.Repeat("word ", 100) + "</p>"))
    }))
    defer srv.Close()

    f := New(Options{MaxText: 20})
    text, err := f.Render(context.Background(), srv.URL)
    if err != nil {
        t.Fatalf("render: %v", err)
    }
    if len(text) > 20 {
        t.Fatalf("text not truncated: %d bytes", len(text))
    }
}

func TestRender_NonOKStatus(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        http.Error(w, "gone", http.StatusNotFound)
    }))
    defer srv.Close()

    f := New(Options{})
    if _, err := f.Render(context.Background(), srv.URL); err == nil {
        t.Fatalf("expected error on 404")
    }
}
