package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_ndc",
        Name:      "sessions_active",
        Help:      "Number of sessions that have not yet reached a terminal state",
    })

    SessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_ndc",
        Name:      "sessions_total",
        Help:      "Total sessions by terminal outcome",
    }, []string{"outcome"})

    RoundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_ndc",
        Name:      "rounds_total",
        Help:      "Total consensus rounds by outcome",
    }, []string{"outcome"})

    RoundDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
        Namespace: "go_ndc",
        Name:      "round_duration_seconds",
        Help:      "Wall-clock duration of a consensus round from dispatch to outcome",
        Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
    })

    ValidatorSetSize = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_ndc",
        Name:      "validator_set_size",
        Help:      "Validator-set size of the most recently started round",
    })

    ParticipantFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_ndc",
        Name:      "participant_failures_total",
        Help:      "Executor results excluded from tallying, by failure kind",
    }, []string{"kind"})

    AppealsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_ndc",
        Name:      "appeals_total",
        Help:      "Total appeal filings by result",
    }, []string{"result"})

    JudgeCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_ndc",
        Subsystem: "judge",
        Name:      "calls_total",
        Help:      "Total equivalence/acceptance judge invocations by verdict",
    }, []string{"verdict"})

    RegistryParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_ndc",
        Name:      "registry_participants",
        Help:      "Current number of participants known to the validator registry",
    })

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_ndc",
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new gRPC connections dialed",
    })
    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_ndc",
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of gRPC connection reuses from cache",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_ndc",
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached gRPC connections evicted",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_ndc",
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of active cached gRPC connections",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(SessionsActive)
        prometheus.MustRegister(SessionsTotal)
        prometheus.MustRegister(RoundsTotal)
        prometheus.MustRegister(RoundDuration)
        prometheus.MustRegister(ValidatorSetSize)
        prometheus.MustRegister(ParticipantFailures)
        prometheus.MustRegister(AppealsTotal)
        prometheus.MustRegister(JudgeCalls)
        prometheus.MustRegister(RegistryParticipants)
        prometheus.MustRegister(GRPCConnDials)
        prometheus.MustRegister(GRPCConnReuse)
        prometheus.MustRegister(GRPCConnEvictions)
        prometheus.MustRegister(GRPCConnActive)
    })
}
