// Package tenant derives tenant keys from request hostnames.
package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// DefaultProduct is the product segment of preview hostnames.
const DefaultProduct = "ratekl"

// Policy maps a raw hostname to a tenant key.
type Policy func(host string) string

// DefaultPolicy returns the hostname convention used by the product. The
// host is trimmed and lowercased to match the normalized hostnames kept in
// the directory. Then "www." is dropped, ".preview.<product>.com" is dropped,
// the first "-" becomes "." and a trailing ".local" is dropped.
//
// Only the first hyphen is replaced, so "my-cool-site.local" becomes
// "my.cool-site". Hostnames with several hyphens are not round-trippable.
func DefaultPolicy(product string) Policy {
	if product == "" {
		product = DefaultProduct
	}
	previewSuffix := ".preview." + product + ".com"
	return func(host string) string {
		key := strings.ToLower(strings.TrimSpace(host))
		key = strings.TrimPrefix(key, "www.")
		key = strings.TrimSuffix(key, previewSuffix)
		key = strings.Replace(key, "-", ".", 1)
		key = strings.TrimSuffix(key, ".local")
		return key
	}
}

// Resolver applies a Policy to request hostnames.
type Resolver struct {
	policy Policy
}

// NewResolver constructs a resolver. A nil policy uses DefaultPolicy.
func NewResolver(policy Policy) *Resolver {
	if policy == nil {
		policy = DefaultPolicy(DefaultProduct)
	}
	return &Resolver{policy: policy}
}

// Resolve maps a raw hostname to its tenant key. The host reaches the policy
// unchanged. The result may be empty.
func (r *Resolver) Resolve(host string) string {
	return r.policy(host)
}

// ResolveRequest resolves the tenant key for an inbound request.
func (r *Resolver) ResolveRequest(req *http.Request) string {
	return r.Resolve(RequestHost(req))
}

// RequestHost returns the hostname a request was addressed to. The
// X-Forwarded-Host header wins over the transport host; ports are dropped.
func RequestHost(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		if idx := strings.Index(fwd, ":"); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}

type contextKey struct{}

// WithKey stores a tenant key on the context.
func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, contextKey{}, key)
}

// KeyFromContext returns the tenant key stored by WithKey.
func KeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(contextKey{}).(string)
	return key, ok
}
