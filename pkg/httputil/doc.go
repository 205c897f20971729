// Package httputil provides the JSON response helpers, request parsing and
// middleware shared by the management API.
//
// Responses:
//
//	httputil.WriteSuccess(w, entries)
//	httputil.WriteNotFoundError(w, "extension not found")
//
// Request parsing:
//
//	var req OrderRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//	kind, ok := httputil.ParsePathStringOrError(w, r, "kind")
//
// Middleware is applied with gorilla/mux:
//
//	router.Use(httputil.RequestIDMiddleware, httputil.RecoveryMiddleware(logger))
//	router.Use(httputil.LoggingMiddleware(logger), httputil.MetricsMiddleware(metrics))
package httputil
