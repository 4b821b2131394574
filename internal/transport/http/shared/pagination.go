package shared

import (
	"net/http"
	"strconv"
)

// Page is the limit/offset window read from the query string.
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset. Missing or malformed values fall back to
// defaultLimit and 0; limit is capped at maxLimit when maxLimit > 0.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) Page {
	q := r.URL.Query()
	page := Page{Limit: defaultLimit}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		page.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		page.Offset = v
	}
	if maxLimit > 0 && page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	return page
}

// WriteTotal sets X-Total-Count so list clients can page without a count call.
func WriteTotal(w http.ResponseWriter, total int) {
	shared.WriteTotal(w, total)
}
