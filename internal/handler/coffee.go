package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/coffeeshop/internal/domain/apperr"
	"github.com/xenking/coffeeshop/internal/domain/search"
)

const dateOnly = "2006-01-02"

func (h *Handler) listCoffees(w http.ResponseWriter, r *http.Request) {
	coffees, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCoffees(&e, coffees)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) getCoffee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "coffee")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCoffee(&e, c, true)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) searchCoffees(w http.ResponseWriter, r *http.Request) {
	f, err := parseSearchQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.search.Search(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeSearchResult(&e, res)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) createCoffee(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decodeCreateCoffee(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCoffee(&e, c, true)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) updateCoffee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "coffee")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := decodeCoffeePatch(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.catalog.Update(r.Context(), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("message")
	e.Str("coffee updated")
	e.FieldStart("data")
	encodeCoffee(&e, c, true)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) deleteCoffee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "coffee")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseSearchQuery reads start_date, end_date, name, tags (comma separated),
// limit and offset. A date-only end_date covers that whole day.
func parseSearchQuery(q url.Values) (search.Filter, error) {
	var f search.Filter
	if v := q.Get("start_date"); v != "" {
		t, err := parseDate(v, false)
		if err != nil {
			return f, apperr.Invalid("start_date", "must be an RFC 3339 timestamp or YYYY-MM-DD date")
		}
		f.StartDate = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := parseDate(v, true)
		if err != nil {
			return f, apperr.Invalid("end_date", "must be an RFC 3339 timestamp or YYYY-MM-DD date")
		}
		f.EndDate = &t
	}
	f.Name = q.Get("name")
	if v := q.Get("tags"); v != "" {
		f.Tags = strings.Split(v, ",")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > search.MaxLimit {
			return f, apperr.Invalid("limit", "must be an integer between 1 and 100")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, apperr.Invalid("offset", "must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

func parseDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}
