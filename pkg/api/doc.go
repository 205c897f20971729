// Package api provides the management HTTP API of the extension host.
//
// # Overview
//
// The API is built on gorilla/mux and exposes the capability registry to
// operators and front ends:
//
//   - Extensions: list per kind, enable, disable or reset to the manifest default, reorder priorities
//   - Active selection: read and switch the active music extension
//   - Connectivity: report network state changes to extensions
//   - Updates: trigger a forced update check
//   - Messages: recent entries of the host message channel
//   - Operations: /healthz, /readyz and /metrics
//
// # Usage
//
//	server := api.NewServer(api.Config{
//		Registry: reg,
//		Updates:  scheduler,
//		Messages: bus,
//		Health:   health,
//		Metrics:  metrics,
//		Logger:   logger,
//	})
//	http.ListenAndServe(":8080", server)
//
// Errors are JSON objects of the form {"error": "..."}. Unknown kinds and
// malformed bodies are 400, unknown extensions 404 and disabled extensions 409.
package api
