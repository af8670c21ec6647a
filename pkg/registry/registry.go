package registry

// ParticipantInfo describes one eligible consensus participant as observed by
// the registry. Meta can carry auxiliary data such as an executor capability
// or a management address.
type ParticipantInfo struct {
    ID   string
    Addr string
    Meta map[string]string
}

// Registry is the injected, versioned view of the eligible participant
// population from which leaders and validators are sampled. Implementations
// must treat the population as read-mostly shared state: Participants returns
// a snapshot that callers may retain for the duration of a round.
type Registry interface {
    // Version increases whenever the population changes. Rounds record the
    // version they sampled against.
    Version() uint64
    // Participants returns a defensive copy of the current population.
    Participants() []ParticipantInfo
}
