package seeds

import (
    "bufio"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
    "time"
)

// FileOptions configures a file-backed seed provider.
type FileOptions struct {
    // Path to a seed file (one address per line, or comma-separated).
    // Glob patterns are accepted; matching files are merged.
    Path string
    // Env names an environment variable that overrides the file when set.
    Env string
    // Refresh bounds how often the file is re-read. Defaults to 5s.
    Refresh time.Duration
}

type fileProvider struct {
    opts  FileOptions
    mu    sync.Mutex
    read  time.Time
    mtime time.Time
    cache []string
}

// FromFile returns a Provider that reads addresses from a file, re-reading
// when the file changes or the refresh window lapses.
func FromFile(opts FileOptions) Provider {
    if opts.Refresh <= 0 {
        opts.Refresh = 5 * time.Second
    }
    return &fileProvider{opts: opts}
}

func (f *fileProvider) Addrs() []string {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(f.opts.Env)); v != "" {
            out := ParseCSV(v)
            sort.Strings(out)
            return out
        }
    }
    if f.opts.Path == "" {
        return nil
    }
    now := time.Now()
    if stat, err := os.Stat(f.opts.Path); err == nil {
        if stat.ModTime().After(f.mtime) || now.Sub(f.read) >= f.opts.Refresh {
            f.cache = readSeedFile(f.opts.Path)
            f.read = now
            f.mtime = stat.ModTime()
        }
        return append([]string(nil), f.cache...)
    }
    if matches, _ := filepath.Glob(f.opts.Path); len(matches) > 0 {
        set := make(map[string]struct{})
        for _, m := range matches {
            for _, a := range readSeedFile(m) {
                set[a] = struct{}{}
            }
        }
        out := make([]string, 0, len(set))
        for a := range set {
            out = append(out, a)
        }
        sort.Strings(out)
        f.cache = out
        f.read = now
        return append([]string(nil), f.cache...)
    }
    return append([]string(nil), f.cache...)
}

// readSeedFile parses one file into a sorted, de-duplicated address list.
// Blank lines and #-comments are skipped.
func readSeedFile(path string) []string {
    fh, err := os.Open(path)
    if err != nil {
        return nil
    }
    defer fh.Close()
    set := make(map[string]struct{})
    sc := bufio.NewScanner(fh)
    for sc.Scan() {
        line := strings.TrimSpace(sc.Text())
        if line == "" || strings.HasPrefix(line, "#") {
            continue
        }
        for _, a := range ParseCSV(line) {
            set[a] = struct{}{}
        }
    }
    if err := sc.Err(); err != nil {
        return nil
    }
    out := make([]string, 0, len(set))
    for a := range set {
        out = append(out, a)
    }
    sort.Strings(out)
    return out
}
