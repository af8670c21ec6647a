package llmexec

import (
    "context"
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/amirimatin/go-ndconsensus/pkg/executor/webfetch"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

func TestNew_Validation(t *testing.T) {
    if _, err := New(Config{Model: "gpt-4o-mini"}); err == nil {
        t.Fatalf("expected error on empty API key")
    }
    if _, err := New(Config{APIKey: "sk-test"}); err == nil {
        t.Fatalf("expected error on empty model")
    }
}

// fakeOpenAI answers chat completions with a fixed verdict and records the
// prompt it was asked.
func fakeOpenAI(t *testing.T, lastPrompt *string) *httptest.Server {
    t.Helper()
    return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
            http.NotFound(w, r)
            return
        }
        body, _ := io.ReadAll(r.Body)
        var req struct {
            Messages []struct {
                Content string `json:"content"`
            } `json:"messages"`
        }
        _ = json.Unmarshal(body, &req)
        if len(req.Messages) > 0 {
            *lastPrompt = req.Messages[0].Content
        }
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"verdict\":\"true\",\"reason\":\"stated in source\"}"}}]}`))
    }))
}

func TestExecFunc_PromptAndResult(t *testing.T) {
    var prompt string
    api := fakeOpenAI(t, &prompt)
    defer api.Close()

    source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte("<p>The tower is 330 metres tall.</p>"))
    }))
    defer source.Close()

    fn, err := New(Config{
        APIKey:  "sk-test",
        Model:   "gpt-4o-mini",
        BaseURL: api.URL + "/v1",
        Fetcher: webfetch.New(webfetch.Options{}),
    })
    if err != nil {
        t.Fatalf("new: %v", err)
    }

    payload, _ := json.Marshal(Payload{Prompt: "Check the claim.", SourceURL: source.URL})
    out, err := fn(context.Background(), task.Task{ID: "t1", Payload: payload})
    if err != nil {
        t.Fatalf("exec: %v", err)
    }
    var verdict struct {
        Verdict string `json:"verdict"`
    }
    if err := json.Unmarshal(out, &verdict); err != nil {
        t.Fatalf("output not JSON: %v (%s)", err, out)
    }
    if verdict.Verdict != "true" {
        t.Fatalf("verdict: %q", verdict.Verdict)
    }
    if !strings.Contains(prompt, "Check the claim.") || !strings.Contains(prompt, "330 metres") {
        t.Fatalf("prompt missing pieces: %q", prompt)
    }
}

func TestExecFunc_BadPayload(t *testing.T) {
    var prompt string
    api := fakeOpenAI(t, &prompt)
    defer api.Close()

    fn, err := New(Config{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: api.URL + "/v1"})
    if err != nil {
        t.Fatalf("new: %v", err)
    }
    if _, err := fn(context.Background(), task.Task{ID: "t1", Payload: []byte(`{`)}); err == nil {
        t.Fatalf("expected error on malformed payload")
    }
    payload, _ := json.Marshal(Payload{})
    if _, err := fn(context.Background(), task.Task{ID: "t1", Payload: payload}); err == nil {
        t.Fatalf("expected error on empty prompt")
    }
}
