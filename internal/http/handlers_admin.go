package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ratekl/api/internal/activity"
	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/service/auth"
	"github.com/ratekl/api/internal/store"
)

const (
	rateLimitDomainRead  = 120
	rateLimitDomainWrite = 60
)

type loginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// handleLogin answers failed logins with an empty token rather than an error
// status; clients treat a blank token as rejected credentials.
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var body loginRequest
	if err := decodeBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := r.auth.Login(req.Context(), body.UserName, body.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			r.logger.Error("login failed", "error", err)
		}
		writeJSON(w, http.StatusOK, loginResponse{})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

type activityPayload struct {
	Data activity.Snapshot `json:"data"`
}

func (r *Router) handleActivityGet(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, activityPayload{Data: r.tracker.GetAllDomainActivity()})
}

func (r *Router) handleActivityPut(w http.ResponseWriter, req *http.Request) {
	var body activityPayload
	if err := decodeBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Data == nil {
		body.Data = activity.Snapshot{}
	}
	r.tracker.SetAllDomainActivity(body.Data)
	r.logger.Info("activity replaced", "domains", len(body.Data))
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) registerDomains() {
	r.mux.HandleFunc("POST /domains-v2", r.admin("domains", rateLimitDomainWrite, r.handleDomainCreate))
	r.mux.HandleFunc("GET /domains-v2", r.admin("domains", rateLimitDomainRead, r.handleDomainList))
	r.mux.HandleFunc("GET /domains-v2/count", r.admin("domains", rateLimitDomainRead, r.handleDomainCount))
	r.mux.HandleFunc("PATCH /domains-v2", r.admin("domains", rateLimitDomainWrite, r.handleDomainUpdateAll))
	r.mux.HandleFunc("GET /domains-v2/{hostname}", r.admin("domains", rateLimitDomainRead, r.handleDomainGet))
	r.mux.HandleFunc("PATCH /domains-v2/{hostname}", r.admin("domains", rateLimitDomainWrite, r.handleDomainUpdate))
	r.mux.HandleFunc("PUT /domains-v2/{hostname}", r.admin("domains", rateLimitDomainWrite, r.handleDomainReplace))
	r.mux.HandleFunc("DELETE /domains-v2/{hostname}", r.admin("domains", rateLimitDomainWrite, r.handleDomainDelete))
	r.mux.HandleFunc("POST /domains-v2/{hostname}/invalidate", r.admin("domains", rateLimitDomainWrite, r.handleDomainInvalidate))
}

func (r *Router) handleDomainCreate(w http.ResponseWriter, req *http.Request) {
	var d domain.Domain
	if err := decodeBody(w, req, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := r.directory.Create(req.Context(), d)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (r *Router) handleDomainList(w http.ResponseWriter, req *http.Request) {
	filter, err := queryFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	active, err := activeFromWhere(filter.Where)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	domains, err := r.directory.List(req.Context(), domain.DomainFilter{
		Active: active,
		Limit:  filter.Limit,
		Offset: filter.Skip,
	})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if domains == nil {
		domains = []domain.Domain{}
	}
	writeJSON(w, http.StatusOK, domains)
}

func (r *Router) handleDomainCount(w http.ResponseWriter, req *http.Request) {
	where, err := queryWhere(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	active, err := activeFromWhere(where)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := r.directory.Count(req.Context(), active)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeCount(w, n)
}

func (r *Router) handleDomainUpdateAll(w http.ResponseWriter, req *http.Request) {
	where, err := queryWhere(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	active, err := activeFromWhere(where)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch domain.DomainPatch
	if err := decodeBody(w, req, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := r.directory.UpdateAll(req.Context(), active, patch)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeCount(w, n)
}

func (r *Router) handleDomainGet(w http.ResponseWriter, req *http.Request) {
	d, err := r.directory.Get(req.Context(), req.PathValue("hostname"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (r *Router) handleDomainUpdate(w http.ResponseWriter, req *http.Request) {
	var patch domain.DomainPatch
	if err := decodeBody(w, req, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := r.directory.Update(req.Context(), req.PathValue("hostname"), patch); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleDomainReplace(w http.ResponseWriter, req *http.Request) {
	var d domain.Domain
	if err := decodeBody(w, req, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := r.directory.Replace(req.Context(), req.PathValue("hostname"), d); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleDomainDelete(w http.ResponseWriter, req *http.Request) {
	if err := r.directory.Delete(req.Context(), req.PathValue("hostname")); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleDomainInvalidate(w http.ResponseWriter, req *http.Request) {
	n := r.directory.Invalidate(req.PathValue("hostname"))
	writeCount(w, int64(n))
}

// activeFromWhere extracts the only directory condition supported by list,
// count and bulk update.
func activeFromWhere(where store.Where) (*bool, error) {
	for key := range where {
		if key != "active" {
			return nil, fmt.Errorf("where.%s: unsupported condition", key)
		}
	}
	v, ok := where.Literal("active")
	if !ok {
		if _, present := where["active"]; present {
			return nil, errors.New("where.active: expected a boolean")
		}
		return nil, nil
	}
	switch b := v.(type) {
	case bool:
		return &b, nil
	case string:
		switch strings.ToLower(b) {
		case "true":
			return domain.Bool(true), nil
		case "false":
			return domain.Bool(false), nil
		}
	}
	return nil, errors.New("where.active: expected a boolean")
}
