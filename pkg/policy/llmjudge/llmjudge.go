package llmjudge

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "strings"

    "github.com/sashabaranov/go-openai"

    "github.com/amirimatin/go-ndconsensus/pkg/internal/logutil"
    "github.com/amirimatin/go-ndconsensus/pkg/observability/metrics"
    "github.com/amirimatin/go-ndconsensus/pkg/policy"
)

const comparePrompt = `You are an equivalence judge for a consensus protocol.
Two independent executions of the same task produced the results below. Decide
whether the CANDIDATE result is equivalent to the REFERENCE result according to
this criterion:

CRITERION: %s

REFERENCE:
%s

CANDIDATE:
%s

Respond ONLY with this exact JSON format, nothing else:
{"equivalent": <true|false>, "confidence": <0.0-1.0>, "reason": "<one sentence>"}`

const assessPrompt = `You are an acceptance judge for a consensus protocol.
Decide whether the RESULT below satisfies this acceptance criterion:

CRITERION: %s

RESULT:
%s

Respond ONLY with this exact JSON format, nothing else:
{"equivalent": <true|false>, "confidence": <0.0-1.0>, "reason": "<one sentence>"}`

// Config configures the model-backed judge.
type Config struct {
    APIKey  string
    Model   string
    BaseURL string // optional
    Logger  *log.Logger
}

// Judge implements policy.Judge on top of a chat-completion model. Judgments
// are requested at temperature zero; the protocol still treats them as
// non-deterministic.
type Judge struct {
    client *openai.Client
    model  string
    logger *log.Logger
}

var _ policy.Judge = (*Judge)(nil)

// New constructs the judge.
func New(cfg Config) (*Judge, error) {
    if cfg.APIKey == "" {
        return nil, fmt.Errorf("llmjudge: empty API key")
    }
    if cfg.Model == "" {
        return nil, fmt.Errorf("llmjudge: empty model")
    }
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    ocfg := openai.DefaultConfig(cfg.APIKey)
    if cfg.BaseURL != "" {
        ocfg.BaseURL = cfg.BaseURL
    }
    return &Judge{client: openai.NewClientWithConfig(ocfg), model: cfg.Model, logger: cfg.Logger}, nil
}

// Compare scores candidate against leader per the closeness criterion.
func (j *Judge) Compare(ctx context.Context, criterion string, leader, candidate []byte) (policy.Judgment, error) {
    prompt := fmt.Sprintf(comparePrompt, criterion, string(leader), string(candidate))
    return j.call(ctx, prompt)
}

// Assess decides whether value satisfies the acceptance criterion.
func (j *Judge) Assess(ctx context.Context, criterion string, value []byte) (policy.Judgment, error) {
    prompt := fmt.Sprintf(assessPrompt, criterion, string(value))
    return j.call(ctx, prompt)
}

func (j *Judge) call(ctx context.Context, prompt string) (policy.Judgment, error) {
    resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
        Model:       j.model,
        Temperature: 0,
        Messages: []openai.ChatCompletionMessage{
            {Role: openai.ChatMessageRoleUser, Content: prompt},
        },
    })
    if err != nil {
        metrics.JudgeCalls.WithLabelValues("error").Inc()
        return policy.Judgment{}, fmt.Errorf("llmjudge: chat completion: %w", err)
    }
    if len(resp.Choices) == 0 {
        metrics.JudgeCalls.WithLabelValues("error").Inc()
        return policy.Judgment{}, fmt.Errorf("llmjudge: no choices in response")
    }
    jm, err := ParseJudgment(resp.Choices[0].Message.Content)
    if err != nil {
        metrics.JudgeCalls.WithLabelValues("unparseable").Inc()
        logutil.Warnf(j.logger, "unparseable judge response: %v", err)
        return policy.Judgment{}, err
    }
    if jm.Equivalent {
        metrics.JudgeCalls.WithLabelValues("equivalent").Inc()
    } else {
        metrics.JudgeCalls.WithLabelValues("not_equivalent").Inc()
    }
    return jm, nil
}

// ParseJudgment extracts the judgment JSON from a model response that may be
// wrapped in prose or code fencing.
func ParseJudgment(response string) (policy.Judgment, error) {
    response = strings.TrimSpace(response)
    start := strings.Index(response, "{")
    end := strings.LastIndex(response, "}")
    if start == -1 || end == -1 || end < start {
        return policy.Judgment{}, fmt.Errorf("llmjudge: no JSON found in response")
    }
    var jm policy.Judgment
    if err := json.Unmarshal([]byte(response[start:end+1]), &jm); err != nil {
        return policy.Judgment{}, fmt.Errorf("llmjudge: parse judgment: %w", err)
    }
    return jm, nil
}
