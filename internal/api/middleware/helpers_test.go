package middleware_test

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routed mounts h at pattern behind mw so route patterns are populated.
func routed(pattern string, h http.HandlerFunc, mw ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(mw...)
	r.Get(pattern, h)
	r.Post(pattern, h)
	return r
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
