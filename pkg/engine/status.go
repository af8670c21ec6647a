package engine

import (
    "encoding/json"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/session"
)

// RoundSummary is a flattened view of one completed round for status queries.
type RoundSummary struct {
    Number     int       `json:"number"`
    LeaderID   string    `json:"leader_id"`
    Validators int       `json:"validators"`
    Outcome    string    `json:"outcome"`
    Agreeing   int       `json:"agreeing"`
    Tallied    int       `json:"tallied"`
    StartedAt  time.Time `json:"started_at"`
}

// SessionStatus is a point-in-time snapshot of a consensus session.
type SessionStatus struct {
    SessionID  string          `json:"session_id"`
    TaskID     string          `json:"task_id"`
    State      session.State   `json:"state"`
    Appeals    int             `json:"appeals"`
    Rounds     []RoundSummary  `json:"rounds"`
    FinalValue json.RawMessage `json:"final_value,omitempty"`
    // Deadline is the finality-window deadline when the session is in the
    // window-open state; zero otherwise.
    Deadline time.Time `json:"deadline,omitempty"`
}

// EngineStatus summarizes the engine as a whole.
type EngineStatus struct {
    Running         bool     `json:"running"`
    Participants    int      `json:"participants"`
    ParticipantIDs  []string `json:"participant_ids"`
    RegistryVersion uint64   `json:"registry_version"`
    LiveSessions    int      `json:"live_sessions"`
    ArchivedCount   int      `json:"archived_count"`
}

func snapshot(s *session.Session) SessionStatus {
    st := SessionStatus{
        SessionID: s.ID,
        TaskID:    s.Task.ID,
        State:     s.State(),
        Appeals:   s.Appeals(),
    }
    for _, r := range s.Rounds() {
        st.Rounds = append(st.Rounds, RoundSummary{
            Number:     r.Number,
            LeaderID:   r.LeaderID,
            Validators: len(r.ValidatorSet),
            Outcome:    string(r.Outcome),
            Agreeing:   r.Agreeing,
            Tallied:    r.Tallied,
            StartedAt:  r.StartedAt,
        })
    }
    if v := s.FinalValue(); v != nil { st.FinalValue = v }
    if st.State == session.StateFinalityWindowOpen { st.Deadline = s.FinalityDeadline() }
    return st
}
