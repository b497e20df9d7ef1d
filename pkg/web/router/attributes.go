package router

import (
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strata-api/strata/pkg/entity"
	"github.com/strata-api/strata/pkg/web/response"
)

// Attribute routes expose container fields directly: list fields get
// index, slice, and mutation routes, map fields get key and mutation
// routes. Lookup routes derive from the Read variant and mutation routes
// from the Update variant, each in a class form that operates on the
// entity's process-level class attributes and an instance form under
// /{id} that operates on a stored record.

// attrRead computes a lookup result from the current container value.
type attrRead func(cur interface{}, r *http.Request) (interface{}, error)

// attrMutation computes the replacement container and the response
// payload. Mutations are pure; the caller persists the replacement.
type attrMutation func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error)

// mountAttrRoutes registers every attribute route for one entity.
func (b *Builder) mountAttrRoutes(r chi.Router, e *entity.Entity) []RouteInfo {
	var routes []RouteInfo

	read := e.Variant(entity.VariantRead)
	for _, f := range read.ListFields() {
		routes = append(routes, b.mountAttrRead(r, e, f, "/{start}:{stop}:{step}", "slice", "read a slice of "+f.Name, listSliceRead(f))...)
		routes = append(routes, b.mountAttrRead(r, e, f, "/{index}", "index", "read "+f.Name+" by index", listIndexRead(f))...)
	}
	for _, f := range read.MapFields() {
		routes = append(routes, b.mountAttrRead(r, e, f, "/{key}", "key", "read "+f.Name+" by key", mapKeyRead(f))...)
	}

	update := e.Variant(entity.VariantUpdate)
	for _, f := range update.ListFields() {
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPost, "/{start}:{stop}:{step}", "set_slice", "assign a slice of "+f.Name, listSetSlice(f))...)
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPost, "/{index}", "set_index", "set "+f.Name+" at an index", listSetIndex(f))...)
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPut, "", "append", "append to "+f.Name, listAppend(f))...)
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPost, "/append", "append", "append to "+f.Name, listAppend(f))...)
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPost, "/extend", "extend", "extend "+f.Name+" with values", listExtend(f))...)
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPost, "/insert", "insert", "insert into "+f.Name, listInsert(f))...)
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPost, "/pop", "pop", "pop from "+f.Name, listPop(f))...)
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPost, "/remove", "remove", "remove a value from "+f.Name, listRemove(f))...)
	}
	for _, f := range update.MapFields() {
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPut, "/{key}", "set_key", "set a key in "+f.Name, mapSetKey(f))...)
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPost, "/{key}", "set_key", "set a key in "+f.Name, mapSetKey(f))...)
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPost, "/pop/{key}", "pop_key", "pop a key from "+f.Name, mapPopKey(f))...)
		routes = append(routes, b.mountAttrMutation(r, e, f, http.MethodPost, "/clear", "clear", "clear "+f.Name, mapClear(f))...)
	}

	return routes
}

// mountAttrRead registers one lookup route in class and instance form.
func (b *Builder) mountAttrRead(r chi.Router, e *entity.Entity, f entity.Field, rel, action, desc string, fn attrRead) []RouteInfo {
	classPat := "/" + f.Name + rel
	instPat := "/{id}/" + f.Name + rel
	r.Method(http.MethodGet, classPat, b.classAttrRead(e, f, fn))
	r.Method(http.MethodGet, instPat, b.instanceAttrRead(e, f, fn))
	return []RouteInfo{
		{Entity: e.Name, Operation: f.Name + "." + action, Method: http.MethodGet, Path: fullPath(e.Prefix, classPat), Scope: entity.ScopeClass, Description: desc},
		{Entity: e.Name, Operation: f.Name + "." + action, Method: http.MethodGet, Path: fullPath(e.Prefix, instPat), Scope: entity.ScopeInstance, Description: desc},
	}
}

// mountAttrMutation registers one mutation route in class and instance
// form.
func (b *Builder) mountAttrMutation(r chi.Router, e *entity.Entity, f entity.Field, method, rel, action, desc string, fn attrMutation) []RouteInfo {
	classPat := "/" + f.Name + rel
	instPat := "/{id}/" + f.Name + rel
	r.Method(method, classPat, b.classAttrMutate(e, f, fn))
	r.Method(method, instPat, b.instanceAttrMutate(e, f, fn))
	return []RouteInfo{
		{Entity: e.Name, Operation: f.Name + "." + action, Method: method, Path: fullPath(e.Prefix, classPat), Scope: entity.ScopeClass, Description: desc},
		{Entity: e.Name, Operation: f.Name + "." + action, Method: method, Path: fullPath(e.Prefix, instPat), Scope: entity.ScopeInstance, Description: desc},
	}
}

// classAttrRead runs a lookup against the class attribute value.
func (b *Builder) classAttrRead(e *entity.Entity, f entity.Field, fn attrRead) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := fn(b.classAttr(e.Name, f.Name), r)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		b.renderJSON(w, http.StatusOK, result)
	}
}

// instanceAttrRead runs a lookup against a stored record's field.
func (b *Builder) instanceAttrRead(e *entity.Entity, f entity.Field, fn attrRead) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := e.GetByID(ctx, b.runtime.Session(ctx), chi.URLParam(r, "id"))
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		result, err := fn(rec[f.Name], r)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		b.renderJSON(w, http.StatusOK, result)
	}
}

// classAttrMutate applies a mutation to the class attribute value.
func (b *Builder) classAttrMutate(e *entity.Entity, f entity.Field, fn attrMutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeBody(r)
		if err != nil {
			response.RenderBadRequest(w, "request body must be a JSON object")
			return
		}
		result, err := b.mutateClassAttr(e.Name, f.Name, func(cur interface{}) (interface{}, interface{}, error) {
			return fn(cur, r, payload)
		})
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		b.renderJSON(w, http.StatusOK, result)
	}
}

// instanceAttrMutate applies a mutation to a stored record's field and
// persists the result through a partial update.
func (b *Builder) instanceAttrMutate(e *entity.Entity, f entity.Field, fn attrMutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")
		payload, err := decodeBody(r)
		if err != nil {
			response.RenderBadRequest(w, "request body must be a JSON object")
			return
		}

		sess := b.runtime.Session(ctx)
		rec, err := e.GetByID(ctx, sess, id)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		next, result, err := fn(rec[f.Name], r, payload)
		if err != nil {
			response.RenderFailure(w, err)
			return
		}
		if _, err := e.UpdateRecord(ctx, sess, id, entity.Record{f.Name: next}); err != nil {
			response.RenderFailure(w, err)
			return
		}
		b.cacheDrop(ctx, e, id)
		b.renderJSON(w, http.StatusOK, result)
	}
}

func listIndexRead(f entity.Field) attrRead {
	return func(cur interface{}, r *http.Request) (interface{}, error) {
		list, _ := cur.([]interface{})
		idx, err := parseIndex(chi.URLParam(r, "index"))
		if err != nil {
			return nil, badRequestErr(err)
		}
		k, err := normalizeIndex(idx, len(list))
		if err != nil {
			return nil, notFoundErr(err)
		}
		return list[k], nil
	}
}

func listSliceRead(f entity.Field) attrRead {
	return func(cur interface{}, r *http.Request) (interface{}, error) {
		list, _ := cur.([]interface{})
		start, stop, step, err := parseSliceParams(r)
		if err != nil {
			return nil, badRequestErr(err)
		}
		adjStart, _, count, err := sliceIndices(start, stop, step, len(list))
		if err != nil {
			return nil, badRequestErr(err)
		}
		return sliceElements(list, adjStart, count, step), nil
	}
}

func listSetIndex(f entity.Field) attrMutation {
	return func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error) {
		list, _ := cur.([]interface{})
		idx, err := parseIndex(chi.URLParam(r, "index"))
		if err != nil {
			return nil, nil, badRequestErr(err)
		}
		k, err := normalizeIndex(idx, len(list))
		if err != nil {
			return nil, nil, notFoundErr(err)
		}
		raw, err := bodyValue(payload)
		if err != nil {
			return nil, nil, err
		}
		v, err := coerceElem(f, raw)
		if err != nil {
			return nil, nil, err
		}
		next := append([]interface{}(nil), list...)
		next[k] = v
		return next, next, nil
	}
}

func listSetSlice(f entity.Field) attrMutation {
	return func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error) {
		list, _ := cur.([]interface{})
		start, stop, step, err := parseSliceParams(r)
		if err != nil {
			return nil, nil, badRequestErr(err)
		}
		raw, err := bodyValues(payload)
		if err != nil {
			return nil, nil, err
		}
		values, err := coerceElems(f, raw)
		if err != nil {
			return nil, nil, err
		}
		next, err := spliceElements(list, start, stop, step, values)
		if err != nil {
			return nil, nil, badRequestErr(err)
		}
		return next, next, nil
	}
}

func listAppend(f entity.Field) attrMutation {
	return func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error) {
		list, _ := cur.([]interface{})
		raw, err := bodyValue(payload)
		if err != nil {
			return nil, nil, err
		}
		v, err := coerceElem(f, raw)
		if err != nil {
			return nil, nil, err
		}
		next := append(append([]interface{}(nil), list...), v)
		return next, next, nil
	}
}

func listExtend(f entity.Field) attrMutation {
	return func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error) {
		list, _ := cur.([]interface{})
		raw, err := bodyValues(payload)
		if err != nil {
			return nil, nil, err
		}
		values, err := coerceElems(f, raw)
		if err != nil {
			return nil, nil, err
		}
		next := append(append([]interface{}(nil), list...), values...)
		return next, next, nil
	}
}

func listInsert(f entity.Field) attrMutation {
	return func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error) {
		list, _ := cur.([]interface{})
		idx, err := bodyIndex(payload, 0, true)
		if err != nil {
			return nil, nil, err
		}
		raw, err := bodyValue(payload)
		if err != nil {
			return nil, nil, err
		}
		v, err := coerceElem(f, raw)
		if err != nil {
			return nil, nil, err
		}
		next := insertAt(list, idx, v)
		return next, next, nil
	}
}

// listPop removes an element, the last one when the body names no index,
// and answers with the removed element rather than the list.
func listPop(f entity.Field) attrMutation {
	return func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error) {
		list, _ := cur.([]interface{})
		idx, err := bodyIndex(payload, -1, false)
		if err != nil {
			return nil, nil, err
		}
		next, popped, err := popAt(list, idx)
		if err != nil {
			return nil, nil, notFoundErr(err)
		}
		return next, popped, nil
	}
}

func listRemove(f entity.Field) attrMutation {
	return func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error) {
		list, _ := cur.([]interface{})
		raw, err := bodyValue(payload)
		if err != nil {
			return nil, nil, err
		}
		v, err := coerceElem(f, raw)
		if err != nil {
			return nil, nil, err
		}
		next, found := removeValue(list, v)
		if !found {
			return nil, nil, response.Errorf(http.StatusNotFound, "value not found in %s", f.Name)
		}
		return next, next, nil
	}
}

func mapKeyRead(f entity.Field) attrRead {
	return func(cur interface{}, r *http.Request) (interface{}, error) {
		m, _ := cur.(map[string]interface{})
		key, err := coerceMapKey(f, chi.URLParam(r, "key"))
		if err != nil {
			return nil, err
		}
		v, ok := m[key]
		if !ok {
			return nil, response.Errorf(http.StatusNotFound, "key %q not found in %s", key, f.Name)
		}
		return v, nil
	}
}

func mapSetKey(f entity.Field) attrMutation {
	return func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error) {
		m, _ := cur.(map[string]interface{})
		key, err := coerceMapKey(f, chi.URLParam(r, "key"))
		if err != nil {
			return nil, nil, err
		}
		raw, err := bodyValue(payload)
		if err != nil {
			return nil, nil, err
		}
		v, err := coerceMapValue(f, raw)
		if err != nil {
			return nil, nil, err
		}
		next := copyMap(m)
		next[key] = v
		return next, next, nil
	}
}

// mapPopKey deletes a key and answers with the removed value.
func mapPopKey(f entity.Field) attrMutation {
	return func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error) {
		m, _ := cur.(map[string]interface{})
		key, err := coerceMapKey(f, chi.URLParam(r, "key"))
		if err != nil {
			return nil, nil, err
		}
		v, ok := m[key]
		if !ok {
			return nil, nil, response.Errorf(http.StatusNotFound, "key %q not found in %s", key, f.Name)
		}
		next := copyMap(m)
		delete(next, key)
		return next, v, nil
	}
}

func mapClear(f entity.Field) attrMutation {
	return func(cur interface{}, r *http.Request, payload entity.Record) (interface{}, interface{}, error) {
		next := map[string]interface{}{}
		return next, next, nil
	}
}

// parseSliceParams reads the start, stop, and step route parameters. All
// three are required integers.
func parseSliceParams(r *http.Request) (int, int, int, error) {
	start, err := parseIndex(chi.URLParam(r, "start"))
	if err != nil {
		return 0, 0, 0, err
	}
	stop, err := parseIndex(chi.URLParam(r, "stop"))
	if err != nil {
		return 0, 0, 0, err
	}
	step, err := parseIndex(chi.URLParam(r, "step"))
	if err != nil {
		return 0, 0, 0, err
	}
	return start, stop, step, nil
}

// bodyValue extracts the required "value" key from a mutation payload.
// The value itself may be null for nullable element types.
func bodyValue(payload entity.Record) (interface{}, error) {
	v, ok := payload["value"]
	if !ok {
		return nil, response.NewHTTPError(http.StatusBadRequest, `request body must carry a "value"`)
	}
	return v, nil
}

// bodyValues extracts the required "values" array from a mutation
// payload.
func bodyValues(payload entity.Record) ([]interface{}, error) {
	raw, ok := payload["values"]
	if !ok {
		return nil, response.NewHTTPError(http.StatusBadRequest, `request body must carry a "values" array`)
	}
	values, ok := raw.([]interface{})
	if !ok {
		return nil, response.NewHTTPError(http.StatusBadRequest, `"values" must be a JSON array`)
	}
	return values, nil
}

// bodyIndex reads an integer "index" from the payload, falling back when
// the key is absent and not required.
func bodyIndex(payload entity.Record, fallback int, required bool) (int, error) {
	raw, ok := payload["index"]
	if !ok {
		if required {
			return 0, response.NewHTTPError(http.StatusBadRequest, `request body must carry an "index"`)
		}
		return fallback, nil
	}
	n, ok := raw.(float64)
	if !ok || n != math.Trunc(n) {
		return 0, response.NewHTTPError(http.StatusBadRequest, `"index" must be an integer`)
	}
	return int(n), nil
}

// coerceElem coerces one incoming value to the list's element type.
func coerceElem(f entity.Field, v interface{}) (interface{}, error) {
	out, err := entity.CoerceValue(*f.Type.Elem, v)
	if err != nil {
		return nil, response.Errorf(http.StatusBadRequest, "%s: %v", f.Name, err)
	}
	return out, nil
}

func coerceElems(f entity.Field, values []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(values))
	for i, v := range values {
		cv, err := entity.CoerceValue(*f.Type.Elem, v)
		if err != nil {
			return nil, response.Errorf(http.StatusBadRequest, "%s[%d]: %v", f.Name, i, err)
		}
		out[i] = cv
	}
	return out, nil
}

func coerceMapValue(f entity.Field, v interface{}) (interface{}, error) {
	out, err := entity.CoerceValue(*f.Type.Value, v)
	if err != nil {
		return nil, response.Errorf(http.StatusBadRequest, "%s: %v", f.Name, err)
	}
	return out, nil
}

// coerceMapKey validates a path key against the map's key type, which
// also canonicalizes uuid keys to lowercase.
func coerceMapKey(f entity.Field, raw string) (string, error) {
	v, err := entity.CoerceValue(*f.Type.Key, raw)
	if err != nil {
		return "", response.Errorf(http.StatusBadRequest, "%s key: %v", f.Name, err)
	}
	s, _ := v.(string)
	return s, nil
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func badRequestErr(err error) error {
	return response.NewHTTPError(http.StatusBadRequest, err.Error())
}

func notFoundErr(err error) error {
	return response.NewHTTPError(http.StatusNotFound, err.Error())
}
