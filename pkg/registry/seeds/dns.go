package seeds

import (
    "context"
    "net"
    "sort"
    "strconv"
    "strings"
    "sync"
    "time"
)

// DNSOptions configures a DNS-backed seed provider.
type DNSOptions struct {
    // Names to resolve. SRV records ("_ndc._tcp.example.com") yield their
    // own ports; plain hostnames resolve via A/AAAA and use Port. Entries
    // already in host:port form pass through unresolved.
    Names []string
    // Port applied to A/AAAA answers. Defaults to 7946.
    Port int
    // Refresh bounds lookup frequency. Defaults to 5s.
    Refresh time.Duration
    // Resolver overrides net.DefaultResolver when set.
    Resolver *net.Resolver
}

type dnsProvider struct {
    opts   DNSOptions
    mu     sync.Mutex
    looked time.Time
    cache  []string
}

// FromDNS returns a Provider that resolves seed addresses through DNS,
// caching answers for the refresh window.
func FromDNS(opts DNSOptions) Provider {
    if opts.Refresh <= 0 {
        opts.Refresh = 5 * time.Second
    }
    if opts.Port == 0 {
        opts.Port = 7946
    }
    return &dnsProvider{opts: opts}
}

func (d *dnsProvider) Addrs() []string {
    d.mu.Lock()
    defer d.mu.Unlock()
    if time.Since(d.looked) < d.opts.Refresh && len(d.cache) > 0 {
        return append([]string(nil), d.cache...)
    }
    d.cache = d.resolve(context.Background())
    d.looked = time.Now()
    return append([]string(nil), d.cache...)
}

func (d *dnsProvider) resolve(ctx context.Context) []string {
    seen := make(map[string]struct{})
    var out []string
    add := func(addr string) {
        if _, ok := seen[addr]; !ok {
            seen[addr] = struct{}{}
            out = append(out, addr)
        }
    }
    for _, name := range d.opts.Names {
        name = strings.TrimSpace(name)
        if name == "" {
            continue
        }
        if strings.Contains(name, ":") && !strings.HasPrefix(name, "_") {
            add(name)
            continue
        }
        if service, proto, domain, ok := splitSRVName(name); ok {
            if recs := d.lookupSRV(ctx, service, proto, domain); len(recs) > 0 {
                for _, hp := range recs {
                    add(hp)
                }
                continue
            }
        }
        for _, hp := range d.lookupHost(ctx, name) {
            add(hp)
        }
    }
    sort.Strings(out)
    return out
}

func (d *dnsProvider) resolver() *net.Resolver {
    if d.opts.Resolver != nil {
        return d.opts.Resolver
    }
    return net.DefaultResolver
}

func (d *dnsProvider) lookupSRV(ctx context.Context, service, proto, domain string) []string {
    _, addrs, err := d.resolver().LookupSRV(ctx, service, proto, domain)
    if err != nil {
        return nil
    }
    out := make([]string, 0, len(addrs))
    for _, a := range addrs {
        host := strings.TrimSuffix(a.Target, ".")
        out = append(out, net.JoinHostPort(host, strconv.Itoa(int(a.Port))))
    }
    return out
}

func (d *dnsProvider) lookupHost(ctx context.Context, host string) []string {
    ips, err := d.resolver().LookupHost(ctx, host)
    if err != nil {
        return nil
    }
    out := make([]string, 0, len(ips))
    for _, ip := range ips {
        out = append(out, net.JoinHostPort(ip, strconv.Itoa(d.opts.Port)))
    }
    return out
}

// splitSRVName decomposes "_service._proto.domain" names.
func splitSRVName(fqdn string) (service, proto, domain string, ok bool) {
    if !strings.HasPrefix(fqdn, "_") || !strings.Contains(fqdn, "._") {
        return "", "", "", false
    }
    parts := strings.SplitN(fqdn, ".", 3)
    if len(parts) < 3 {
        return "", "", "", false
    }
    return strings.TrimPrefix(parts[0], "_"), strings.TrimPrefix(parts[1], "_"), parts[2], true
}
