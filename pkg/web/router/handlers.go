package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/strata-api/strata/pkg/entity"
	"github.com/strata-api/strata/pkg/web/cache"
	"github.com/strata-api/strata/pkg/web/response"
)

// createHandler restricts the payload to the Create variant, persists the
// record, and answers 201 with the Read projection.
func (b *Builder) createHandler(e *entity.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		payload, err := decodeBody(r)
		if err != nil {
			response.RenderBadRequest(w, "request body must be a JSON object")
			return
		}
		if payload == nil {
			payload = entity.Record{}
		}

		input, err := e.Project(entity.VariantCreate, payload)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		rec, err := e.CreateRecord(ctx, b.runtime.Session(ctx), input)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		out, err := e.Project(entity.VariantRead, rec)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		b.cacheStore(ctx, e, out)
		b.renderJSON(w, http.StatusCreated, out)
	}
}

// readHandler serves one record by id, consulting the cache before
// storage.
func (b *Builder) readHandler(e *entity.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		if body, ok := b.cacheGet(ctx, e, id); ok {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}

		rec, err := e.GetByID(ctx, b.runtime.Session(ctx), id)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		out, err := e.Project(entity.VariantRead, rec)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		b.cacheStore(ctx, e, out)
		b.renderJSON(w, http.StatusOK, out)
	}
}

// listHandler serves the collection root. An ids parameter fetches
// exactly those records; otherwise the listing honors optional offset and
// limit parameters.
func (b *Builder) listHandler(e *entity.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()

		var recs []entity.Record
		var err error
		if ids := queryIDs(q["ids"]); len(ids) > 0 {
			recs, err = e.GetByIDs(ctx, b.runtime.Session(ctx), ids)
		} else {
			offset, perr := queryInt(q.Get("offset"))
			if perr != nil {
				response.RenderBadRequest(w, "offset must be an integer")
				return
			}
			limit, perr := queryInt(q.Get("limit"))
			if perr != nil {
				response.RenderBadRequest(w, "limit must be an integer")
				return
			}
			recs, err = e.GetAll(ctx, b.runtime.Session(ctx), offset, limit)
		}
		if err != nil {
			response.RenderFailure(w, err)
			return
		}

		out := make([]entity.Record, 0, len(recs))
		for _, rec := range recs {
			proj, perr := e.Project(entity.VariantRead, rec)
			if perr != nil {
				response.RenderFailure(w, perr)
				return
			}
			out = append(out, proj)
		}
		b.renderJSON(w, http.StatusOK, out)
	}
}

// updateHandler applies a partial update and answers with the fresh Read
// projection.
func (b *Builder) updateHandler(e *entity.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")
		payload, err := decodeBody(r)
		if err != nil {
			response.RenderBadRequest(w, "request body must be a JSON object")
			return
		}
		if payload == nil {
			payload = entity.Record{}
		}

		rec, err := e.UpdateRecord(ctx, b.runtime.Session(ctx), id, payload)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		out, err := e.Project(entity.VariantRead, rec)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		b.cacheStore(ctx, e, out)
		b.renderJSON(w, http.StatusOK, out)
	}
}

// deleteHandler removes the record. Both DELETE /{id} and POST
// /{id}/delete land here.
func (b *Builder) deleteHandler(e *entity.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")
		if err := e.DeleteRecord(ctx, b.runtime.Session(ctx), id); err != nil {
			response.RenderFailure(w, err)
			return
		}
		b.cacheDrop(ctx, e, id)
		b.renderJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}

// opHandler adapts a custom operation to HTTP. Instance operations load
// the addressed record first, so a missing id answers 404 before the
// handler runs.
func (b *Builder) opHandler(e *entity.Entity, op entity.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		payload, err := decodeBody(r)
		if err != nil {
			response.RenderBadRequest(w, "request body must be a JSON object")
			return
		}

		req := &entity.OpRequest{
			App:     b.runtime,
			Entity:  e,
			Payload: payload,
			Query:   r.URL.Query(),
		}
		if op.Scope == entity.ScopeInstance {
			rec, err := e.GetByID(ctx, b.runtime.Session(ctx), chi.URLParam(r, "id"))
			if err != nil {
				response.RenderFailure(w, err)
				return
			}
			req.Instance = rec
		}

		result, err := op.Handler(ctx, req)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		if op.Scope == entity.ScopeInstance && op.Method != http.MethodGet {
			b.cacheDrop(ctx, e, chi.URLParam(r, "id"))
		}
		b.renderJSON(w, http.StatusOK, result)
	}
}

// decodeBody reads the request body as a JSON object. A missing or empty
// body yields a nil record.
func decodeBody(r *http.Request) (entity.Record, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var rec entity.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// queryIDs flattens repeated and comma-separated ids parameters.
func queryIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, part)
			}
		}
	}
	return ids
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (b *Builder) renderJSON(w http.ResponseWriter, status int, data interface{}) {
	if err := response.RenderJSON(w, status, data); err != nil {
		b.logger.Debug("response write failed", zap.Error(err))
	}
}

// cacheGet fetches the cached Read projection bytes for a record. Backend
// failures degrade to a miss.
func (b *Builder) cacheGet(ctx context.Context, e *entity.Entity, id string) ([]byte, bool) {
	if b.cache == nil {
		return nil, false
	}
	body, err := b.cache.Get(ctx, cache.RecordKey(e.Name, id))
	if err != nil {
		if !cache.IsCacheMiss(err) {
			b.logger.Warn("cache get failed",
				zap.String("entity", e.Name),
				zap.String("id", id),
				zap.Error(err))
		}
		return nil, false
	}
	return body, true
}

// cacheStore saves a Read projection under the record's key. Failures are
// logged and otherwise ignored; the response was already computed from
// storage.
func (b *Builder) cacheStore(ctx context.Context, e *entity.Entity, out entity.Record) {
	if b.cache == nil {
		return
	}
	id, _ := out["id"].(string)
	if id == "" {
		return
	}
	body, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, cache.RecordKey(e.Name, id), body, b.cacheTTL); err != nil {
		b.logger.Warn("cache set failed",
			zap.String("entity", e.Name),
			zap.String("id", id),
			zap.Error(err))
	}
}

// cacheDrop invalidates the cached projection after a write.
func (b *Builder) cacheDrop(ctx context.Context, e *entity.Entity, id string) {
	if b.cache == nil || id == "" {
		return
	}
	if err := b.cache.Delete(ctx, cache.RecordKey(e.Name, id)); err != nil {
		b.logger.Warn("cache delete failed",
			zap.String("entity", e.Name),
			zap.String("id", id),
			zap.Error(err))
	}
}
