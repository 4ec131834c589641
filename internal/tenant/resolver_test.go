package tenant

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy("ratekl")
	cases := map[string]string{
		"acme.com":                        "acme.com",
		"www.acme.com":                    "acme.com",
		"acme-com.preview.ratekl.com":     "acme.com",
		"www.acme-com.preview.ratekl.com": "acme.com",
		"acme-com.local":                  "acme.com",
		"acme.com.local":                  "acme.com",
		"my-cool-site.local":              "my.cool-site",
		"":                                "",
		"other.preview.elsewhere.com":     "other.preview.elsewhere.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, policy(in), "input %q", in)
	}
}

func TestDefaultPolicyCustomProduct(t *testing.T) {
	policy := DefaultPolicy("shop")
	assert.Equal(t, "acme.com", policy("acme-com.preview.shop.com"))
	assert.Equal(t, "acme.com.preview.ratekl.com", policy("acme-com.preview.ratekl.com"))
}

func TestResolveStripsWWWAndIsIdempotent(t *testing.T) {
	r := NewResolver(nil)
	hosts := []string{"acme.com", "beta.org", "acme-com", "shop.acme.com", "acme.com.local", "x"}
	for _, h := range hosts {
		once := r.Resolve(h)
		assert.Equal(t, once, r.Resolve("www."+h), "www prefix for %q", h)
		assert.Equal(t, once, r.Resolve(once), "idempotence for %q", h)
	}
}

func TestResolveNormalizesCase(t *testing.T) {
	r := NewResolver(nil)
	assert.Equal(t, "acme.com", r.Resolve("  WWW.Acme.COM "))
}

func TestResolvePassesRawHostToCustomPolicy(t *testing.T) {
	var seen string
	r := NewResolver(func(host string) string {
		seen = host
		return host
	})
	assert.Equal(t, " Acme.COM", r.Resolve(" Acme.COM"))
	assert.Equal(t, " Acme.COM", seen)
}

func TestRequestHostPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "http://internal:3333/app-data-v2", nil)
	req.Header.Set("X-Forwarded-Host", "www.acme.com:443")
	require.Equal(t, "www.acme.com", RequestHost(req))

	req = httptest.NewRequest("GET", "http://beta-org.local:3000/", nil)
	require.Equal(t, "beta-org.local", RequestHost(req))
	require.Equal(t, "beta.org", NewResolver(nil).ResolveRequest(req))
}

func TestContextKey(t *testing.T) {
	_, ok := KeyFromContext(context.Background())
	require.False(t, ok)

	ctx := WithKey(context.Background(), "acme.com")
	key, ok := KeyFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "acme.com", key)
}
