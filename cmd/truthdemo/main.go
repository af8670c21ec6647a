package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"

    "github.com/amirimatin/go-ndconsensus/pkg/engine"
    "github.com/amirimatin/go-ndconsensus/pkg/executor"
    "github.com/amirimatin/go-ndconsensus/pkg/executor/llmexec"
    "github.com/amirimatin/go-ndconsensus/pkg/policy/llmjudge"
    "github.com/amirimatin/go-ndconsensus/pkg/registry/static"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

// Fact-checking demo: a claim plus a source URL go through leader/validator
// execution, each participant independently rendering the page and asking the
// model for a verdict. Strict equivalence over canonical JSON decides whether
// the validators accept the leader's verdict.

const factCheckPrompt = `You are a fact checker. Using ONLY the web content provided below,
decide whether the following claim is supported.

Claim: %s

Respond ONLY with this exact JSON format, nothing else:
{"verdict": "<true|false|partially_true>", "reason": "<one sentence citing the content>"}`

func main() {
    var (
        claim       = flag.String("claim", "The Eiffel Tower is located in Paris.", "claim to fact-check")
        sourceURL   = flag.String("source", "https://en.wikipedia.org/wiki/Eiffel_Tower", "source page for the claim")
        model       = flag.String("model", "gpt-4o-mini", "model for execution")
        validators  = flag.Int("validators", 4, "validator-set size of the first round")
        window      = flag.Duration("window", 10*time.Second, "finality window")
        temperature = flag.Float64("temperature", 0.7, "sampling temperature")
    )
    flag.Parse()

    _ = godotenv.Load()
    apiKey := os.Getenv("OPENAI_API_KEY")
    if apiKey == "" {
        log.Fatal("OPENAI_API_KEY is required (set it in the environment or a .env file)")
    }

    ctx, cancel := signalContext()
    defer cancel()
    logger := log.Default()

    fn, err := llmexec.New(llmexec.Config{
        APIKey:      apiKey,
        Model:       *model,
        Temperature: float32(*temperature),
        Logger:      logger,
    })
    if err != nil { log.Fatal(err) }

    judge, err := llmjudge.New(llmjudge.Config{APIKey: apiKey, Model: *model, Logger: logger})
    if err != nil { log.Fatal(err) }

    // Simulated population: every participant runs the same executor, so
    // disagreement comes from model non-determinism alone.
    reg := static.New("leader-pool-1", "val-1", "val-2", "val-3", "val-4", "val-5", "val-6", "val-7")

    eng, err := engine.New(engine.Options{
        Executor:          executor.New(fn, executor.Options{Logger: logger}),
        Registry:          reg,
        Judge:             judge,
        Logger:            logger,
        InitialValidators: *validators,
        FinalityWindow:    *window,
    })
    if err != nil { log.Fatal(err) }
    if err := eng.Start(ctx); err != nil { log.Fatal(err) }
    defer func() { _ = eng.Stop(context.Background()) }()

    events := eng.Subscribe(ctx)
    go func() {
        for ev := range events {
            fmt.Printf("event: %-20s session=%s round=%d outcome=%s\n", ev.Type, ev.SessionID, ev.Round, ev.Outcome)
        }
    }()

    payload, err := json.Marshal(llmexec.Payload{
        Prompt:    fmt.Sprintf(factCheckPrompt, *claim),
        SourceURL: *sourceURL,
    })
    if err != nil { log.Fatal(err) }

    sessionID, err := eng.SubmitTask(ctx, task.Task{
        ID:      "truth-demo",
        Payload: payload,
        Policy:  task.PolicyStrict,
    })
    if err != nil { log.Fatal(err) }
    fmt.Printf("submitted claim %q as session %s\n", *claim, sessionID)

    // Poll until the session resolves or Ctrl+C.
    ticker := time.NewTicker(500 * time.Millisecond)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            st, err := eng.SessionStatus(sessionID)
            if err != nil { log.Fatal(err) }
            switch st.State {
            case "finalized":
                fmt.Printf("verdict (after %d round(s)): %s\n", len(st.Rounds), st.FinalValue)
                return
            case "failed":
                fmt.Printf("no consensus after %d round(s)\n", len(st.Rounds))
                return
            }
        }
    }
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
