package middleware

import "net/http"

// RouteLimit overrides the body cap for one exact request path.
type RouteLimit struct {
	Path     string
	MaxBytes int64
}

// BodyLimit caps POST/PUT/PATCH bodies at maxBytes, or at the matching
// route's cap. Upload routes need a larger cap than the JSON API default.
func BodyLimit(maxBytes int64, routes ...RouteLimit) func(http.Handler) http.Handler {
	caps := make(map[string]int64, len(routes))
	for _, rl := range routes {
		caps[rl.Path] = rl.MaxBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				limit := maxBytes
				if c, ok := caps[r.URL.Path]; ok {
					limit = c
				}
				if limit > 0 {
					r.Body = http.MaxBytesReader(w, r.Body, limit)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
