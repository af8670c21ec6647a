package round

import (
    "math/rand"

    "github.com/amirimatin/go-ndconsensus/pkg/registry"
)

// pickLeader selects a leader uniformly at random, excluding the leader of
// the immediately preceding round of the same session (repeated-leader bias).
// When the exclusion would empty the pool it is lifted.
func pickLeader(parts []registry.ParticipantInfo, exclude string, rnd *rand.Rand) registry.ParticipantInfo {
    pool := make([]registry.ParticipantInfo, 0, len(parts))
    for _, p := range parts {
        if p.ID == exclude { continue }
        pool = append(pool, p)
    }
    if len(pool) == 0 {
        pool = parts
    }
    return pool[rnd.Intn(len(pool))]
}

// sampleValidators draws up to n validators from the population excluding the
// leader, in random order.
func sampleValidators(parts []registry.ParticipantInfo, leaderID string, n int, rnd *rand.Rand) []string {
    pool := make([]string, 0, len(parts))
    for _, p := range parts {
        if p.ID == leaderID { continue }
        pool = append(pool, p.ID)
    }
    rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
    if n > len(pool) {
        n = len(pool)
    }
    return pool[:n]
}
