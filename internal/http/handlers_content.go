package httpx

import (
	"context"
	"net/http"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/store"
)

// entityService is the by-id surface shared by the tenant content services.
type entityService[T any] interface {
	FindByID(ctx context.Context, id string, filter store.Filter) (T, error)
	Count(ctx context.Context, where store.Where) (int64, error)
	UpdateAll(ctx context.Context, patch store.Document, where store.Where) (int64, error)
	UpdateByID(ctx context.Context, id string, patch store.Document) error
	ReplaceByID(ctx context.Context, id string, entity T) error
	DeleteByID(ctx context.Context, id string) error
}

func registerEntity[T any](r *Router, base, route string, svc entityService[T]) {
	r.mux.HandleFunc("GET "+base+"/count", r.read(route, handleCount(r, svc)))
	r.mux.HandleFunc("PATCH "+base, r.write(route, handleUpdateAll(r, svc)))
	r.mux.HandleFunc("GET "+base+"/{id}", r.read(route, handleFindByID(r, svc)))
	r.mux.HandleFunc("PATCH "+base+"/{id}", r.write(route, handleUpdateByID(r, svc)))
	r.mux.HandleFunc("PUT "+base+"/{id}", r.write(route, handleReplaceByID(r, svc)))
	r.mux.HandleFunc("DELETE "+base+"/{id}", r.write(route, handleDeleteByID(r, svc)))
}

func handleCount[T any](r *Router, svc entityService[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		where, err := queryWhere(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		n, err := svc.Count(req.Context(), where)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeCount(w, n)
	}
}

func handleUpdateAll[T any](r *Router, svc entityService[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		where, err := queryWhere(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch, err := decodePatch(w, req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		n, err := svc.UpdateAll(req.Context(), patch, where)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeCount(w, n)
	}
}

func handleFindByID[T any](r *Router, svc entityService[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		filter, err := queryFilter(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		entity, err := svc.FindByID(req.Context(), req.PathValue("id"), filter)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, entity)
	}
}

func handleUpdateByID[T any](r *Router, svc entityService[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		patch, err := decodePatch(w, req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := svc.UpdateByID(req.Context(), req.PathValue("id"), patch); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleReplaceByID[T any](r *Router, svc entityService[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var entity T
		if err := decodeBody(w, req, &entity); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := svc.ReplaceByID(req.Context(), req.PathValue("id"), entity); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteByID[T any](r *Router, svc entityService[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := svc.DeleteByID(req.Context(), req.PathValue("id")); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (r *Router) registerAppData() {
	r.mux.HandleFunc("POST /app-data-v2", r.write("app-data", r.handleAppDataCreate))
	r.mux.HandleFunc("GET /app-data-v2", r.read("app-data", r.handleAppDataFind))
	registerEntity[domain.AppData](r, "/app-data-v2", "app-data", r.appData)

	r.mux.HandleFunc("GET /app-data-public-v2", r.public("app-data-public", r.handleAppDataFindPublic))
	r.mux.HandleFunc("GET /app-data-public-v2/{id}", r.public("app-data-public", r.handleAppDataFindPublicByID))
}

func (r *Router) handleAppDataCreate(w http.ResponseWriter, req *http.Request) {
	caller, _ := principalFromContext(req.Context())
	var record domain.AppData
	if err := decodeBody(w, req, &record); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := r.appData.Create(req.Context(), caller, record)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (r *Router) handleAppDataFind(w http.ResponseWriter, req *http.Request) {
	caller, _ := principalFromContext(req.Context())
	filter, err := queryFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := r.appData.Find(req.Context(), caller, filter)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (r *Router) handleAppDataFindPublic(w http.ResponseWriter, req *http.Request) {
	filter, err := queryFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := r.appData.FindPublic(req.Context(), filter)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (r *Router) handleAppDataFindPublicByID(w http.ResponseWriter, req *http.Request) {
	filter, err := queryFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := r.appData.FindPublicByID(req.Context(), req.PathValue("id"), filter)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (r *Router) registerMembers() {
	r.mux.HandleFunc("POST /app-member-v2", r.write("app-member", r.handleMemberCreate))
	r.mux.HandleFunc("GET /app-member-v2", r.read("app-member", r.handleMemberFind))
	registerEntity[domain.AppMember](r, "/app-member-v2", "app-member", r.members)

	r.mux.HandleFunc("GET /app-member-public-v2", r.public("app-member-public", r.handleMemberFindPublic))
	r.mux.HandleFunc("GET /app-member-public-v2/{id}", r.public("app-member-public", r.handleMemberFindPublicByID))
}

func (r *Router) handleMemberCreate(w http.ResponseWriter, req *http.Request) {
	var m domain.AppMember
	if err := decodeBody(w, req, &m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := r.members.Create(req.Context(), m)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (r *Router) handleMemberFind(w http.ResponseWriter, req *http.Request) {
	filter, err := queryFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	members, err := r.members.Find(req.Context(), filter)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (r *Router) handleMemberFindPublic(w http.ResponseWriter, req *http.Request) {
	filter, err := queryFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	members, err := r.members.FindPublic(req.Context(), filter)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (r *Router) handleMemberFindPublicByID(w http.ResponseWriter, req *http.Request) {
	filter, err := queryFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := r.members.FindPublicByID(req.Context(), req.PathValue("id"), filter)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type publishRequest struct {
	Name string `json:"name"`
}

func (r *Router) registerAppInfo() {
	r.mux.HandleFunc("POST /app-info-v2", r.write("app-info", r.handleAppInfoCreate))
	r.mux.HandleFunc("GET /app-info-v2", r.read("app-info", r.handleAppInfoFind))
	registerEntity[domain.AppInfo](r, "/app-info-v2", "app-info", r.appInfo)

	r.mux.HandleFunc("POST /publish-v2", r.write("publish", r.handlePublish))
	r.mux.HandleFunc("POST /revert-v2", r.write("publish", r.handleRevert))
}

func (r *Router) handleAppInfoCreate(w http.ResponseWriter, req *http.Request) {
	var info domain.AppInfo
	if err := decodeBody(w, req, &info); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := r.appInfo.Create(req.Context(), info)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (r *Router) handleAppInfoFind(w http.ResponseWriter, req *http.Request) {
	filter, err := queryFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	infos, err := r.appInfo.Find(req.Context(), filter)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (r *Router) handlePublish(w http.ResponseWriter, req *http.Request) {
	var body publishRequest
	if err := decodeBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	n, err := r.appInfo.Publish(req.Context(), body.Name)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeCount(w, n)
}

func (r *Router) handleRevert(w http.ResponseWriter, req *http.Request) {
	var body publishRequest
	if err := decodeBody(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	n, err := r.appInfo.Revert(req.Context(), body.Name)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeCount(w, n)
}
