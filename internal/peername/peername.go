// Package peername recovers meaningful names for the peer addresses of
// tracked connections.
//
// A transmit timestamp is filed against an IP:port pair, which says little
// on its own. Endpoints the operator wrote down (the dial target, the
// environment, the command line) are scanned for hostnames and addresses,
// hostnames are resolved once, and the result is kept as a reverse map from
// IP to the names that produced it.
package peername

import (
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var (
	hostnameRegex   = regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}`)
	ipv4Regex       = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)
	ipv6Regex       = regexp.MustCompile(`(?i)(?:\[)?(?:[0-9a-f]{0,4}:){2,7}[0-9a-f]{0,4}(?:\])?`)
	hostnamePortReg = regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}:\d{1,5}`)
)

// LookupFunc resolves a hostname to its addresses.
type LookupFunc func(host string) ([]net.IP, error)

// Resolver builds reverse IP lookups from ingested endpoint strings.
// It is safe for concurrent use.
//
// Usage:
//
//	r := New()
//	r.IngestEndpoints(target)         // the address being dialed
//	r.IngestEndpoints(os.Environ()...) // endpoints configured for the process
//	names := r.Lookup("10.0.0.5")
type Resolver struct {
	mu        sync.RWMutex
	ipToHosts map[string][]string
	processed map[string]bool
	lookup    LookupFunc
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookup replaces the DNS lookup used for hostnames.
func WithLookup(fn LookupFunc) Option {
	return func(r *Resolver) {
		r.lookup = fn
	}
}

// New creates a Resolver that resolves hostnames with net.LookupIP.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		ipToHosts: make(map[string][]string),
		processed: make(map[string]bool),
		lookup:    net.LookupIP,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IngestEndpoints scans each string for hostnames, IPs, and hostname:port
// combinations.
func (r *Resolver) IngestEndpoints(endpoints ...string) {
	for _, endpoint := range endpoints {
		r.extract(endpoint)
	}
}

func (r *Resolver) extract(s string) {
	for _, match := range hostnamePortReg.FindAllString(s, -1) {
		r.addHostnamePort(match)
	}
	for _, match := range hostnameRegex.FindAllString(s, -1) {
		r.addHostname(match)
	}
	for _, match := range ipv4Regex.FindAllString(s, -1) {
		r.addLiteral(match)
	}
	for _, match := range ipv6Regex.FindAllString(s, -1) {
		if ip := net.ParseIP(strings.Trim(match, "[]")); ip != nil && ip.To4() == nil {
			r.addLiteral(match)
		}
	}
}

func (r *Resolver) addHostnamePort(hostPort string) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return
	}
	r.addHostname(host)
}

func (r *Resolver) addHostname(hostname string) {
	hostname = strings.Trim(strings.ToLower(hostname), "[]")

	r.mu.Lock()
	seen := r.processed[hostname]
	r.processed[hostname] = true
	r.mu.Unlock()
	if seen {
		return
	}

	// Resolve outside the lock
	ips, err := r.lookup(hostname)
	if err != nil {
		return
	}
	for _, ip := range ips {
		r.addMapping(ip.String(), hostname)
	}
}

func (r *Resolver) addLiteral(s string) {
	ip := net.ParseIP(strings.Trim(s, "[]"))
	if ip == nil {
		return
	}
	r.addMapping(ip.String(), ip.String())
}

func (r *Resolver) addMapping(ip, hostname string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range r.ipToHosts[ip] {
		if h == hostname {
			return
		}
	}
	r.ipToHosts[ip] = append(r.ipToHosts[ip], hostname)
}

// Lookup returns the names known for ip, in ingestion order.
func (r *Resolver) Lookup(ip string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hosts := r.ipToHosts[ip]
	if len(hosts) == 0 {
		return nil
	}
	return append([]string(nil), hosts...)
}

// LookupPeer resolves the host part of a host:port peer address and returns
// the first name that is not the address itself. It returns "" when no
// such name was ingested.
func (r *Resolver) LookupPeer(peer string) string {
	host, _, err := net.SplitHostPort(peer)
	if err != nil {
		host = peer
	}
	if ip := net.ParseIP(host); ip != nil {
		host = ip.String()
	}
	for _, name := range r.Lookup(host) {
		if name != host {
			return name
		}
	}
	return ""
}
