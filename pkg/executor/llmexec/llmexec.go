package llmexec

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "strings"

    "github.com/sashabaranov/go-openai"

    "github.com/amirimatin/go-ndconsensus/pkg/executor"
    "github.com/amirimatin/go-ndconsensus/pkg/executor/webfetch"
    "github.com/amirimatin/go-ndconsensus/pkg/internal/logutil"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

// Payload is the task payload understood by this backend: an instruction
// prompt plus an optional source URL whose rendered text is appended to the
// prompt before inference.
type Payload struct {
    Prompt    string `json:"prompt"`
    SourceURL string `json:"sourceUrl,omitempty"`
}

// Config configures the model-backed executor.
type Config struct {
    APIKey  string
    Model   string
    BaseURL string // optional; defaults to the OpenAI endpoint
    // Temperature passed to the model. Non-determinism is expected here;
    // the consensus layer is what reconciles it.
    Temperature float32
    Fetcher     *webfetch.Fetcher // optional; built with defaults when nil
    Logger      *log.Logger
}

// New returns an executor.Func that renders the payload's source URL (when
// present), runs the prompt against the model with a JSON response format,
// and returns the raw JSON result. This is the fetch-then-infer shape of a
// typical non-deterministic task.
func New(cfg Config) (executor.Func, error) {
    if cfg.APIKey == "" {
        return nil, fmt.Errorf("llmexec: empty API key")
    }
    if cfg.Model == "" {
        return nil, fmt.Errorf("llmexec: empty model")
    }
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    if cfg.Fetcher == nil { cfg.Fetcher = webfetch.New(webfetch.Options{}) }

    ocfg := openai.DefaultConfig(cfg.APIKey)
    if cfg.BaseURL != "" {
        ocfg.BaseURL = cfg.BaseURL
    }
    client := openai.NewClientWithConfig(ocfg)

    return func(ctx context.Context, t task.Task) ([]byte, error) {
        var p Payload
        if err := json.Unmarshal(t.Payload, &p); err != nil {
            return nil, fmt.Errorf("llmexec: bad payload for task %s: %w", t.ID, err)
        }
        if p.Prompt == "" {
            return nil, fmt.Errorf("llmexec: task %s has no prompt", t.ID)
        }
        prompt := p.Prompt
        if p.SourceURL != "" {
            text, err := cfg.Fetcher.Render(ctx, p.SourceURL)
            if err != nil {
                return nil, fmt.Errorf("llmexec: render source: %w", err)
            }
            prompt = prompt + "\n\nWEB CONTENT:\n" + text
        }
        resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
            Model:       cfg.Model,
            Temperature: cfg.Temperature,
            ResponseFormat: &openai.ChatCompletionResponseFormat{
                Type: openai.ChatCompletionResponseFormatTypeJSONObject,
            },
            Messages: []openai.ChatCompletionMessage{
                {Role: openai.ChatMessageRoleUser, Content: prompt},
            },
        })
        if err != nil {
            return nil, fmt.Errorf("llmexec: chat completion: %w", err)
        }
        if len(resp.Choices) == 0 {
            return nil, fmt.Errorf("llmexec: no choices in response")
        }
        content := strings.TrimSpace(resp.Choices[0].Message.Content)
        logutil.Infof(cfg.Logger, "model result: task=%s bytes=%d", t.ID, len(content))
        return []byte(content), nil
    }, nil
}
