package httpx

import (
	"net/http"

	"github.com/ratekl/api/internal/tenant"
)

// withTenant resolves the tenant key from the request host and stores it on
// the context. An empty key is passed through; repositories reject it.
func (r *Router) withTenant(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		key := r.resolver.ResolveRequest(req)
		ctx := tenant.WithKey(req.Context(), key)
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}
