// Package seeds resolves join addresses for the gossip-backed participant
// registry. Providers return host:port candidates for memberlist to contact;
// sources range from a fixed list to files and DNS records that can change
// while the node runs.
package seeds

import "strings"

// Provider yields the current set of join addresses. Implementations may
// cache; callers should treat the result as a snapshot.
type Provider interface {
    Addrs() []string
}

type fixed struct{ addrs []string }

func (f *fixed) Addrs() []string { return append([]string(nil), f.addrs...) }

// Fixed returns a Provider over an unchanging address list. Blank entries
// are dropped.
func Fixed(addrs ...string) Provider {
    out := make([]string, 0, len(addrs))
    for _, a := range addrs {
        if a = strings.TrimSpace(a); a != "" {
            out = append(out, a)
        }
    }
    return &fixed{addrs: out}
}

// ParseCSV splits a comma-separated address list, trimming whitespace and
// dropping empty entries.
func ParseCSV(csv string) []string {
    if csv == "" {
        return nil
    }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}

type multi struct{ providers []Provider }

func (m *multi) Addrs() []string {
    seen := make(map[string]struct{})
    var out []string
    for _, p := range m.providers {
        for _, a := range p.Addrs() {
            if _, ok := seen[a]; ok {
                continue
            }
            seen[a] = struct{}{}
            out = append(out, a)
        }
    }
    return out
}

// Combine merges several providers, de-duplicating addresses while keeping
// first-seen order.
func Combine(providers ...Provider) Provider {
    kept := make([]Provider, 0, len(providers))
    for _, p := range providers {
        if p != nil {
            kept = append(kept, p)
        }
    }
    return &multi{providers: kept}
}
