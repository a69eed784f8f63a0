// Package middleware provides the HTTP middleware the server wraps every
// route with: request ids, access logging, CORS and panic recovery.
package middleware

import (
	"net/http"
	"slices"

	"github.com/edgeflare/pgcrud/pkg/httputil"
)

// Chain wraps h so a request passes through middlewares in the order given.
func Chain(h http.Handler, middlewares ...httputil.Middleware) http.Handler {
	for _, mw := range slices.Backward(middlewares) {
		h = mw(h)
	}
	return h
}
