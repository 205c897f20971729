package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/httputil"
	"github.com/platinummonkey/trellis/pkg/registry"
	"github.com/platinummonkey/trellis/pkg/updater"
)

const defaultMessageLimit = 50

// parseKind reads the {kind} path parameter, writing a 400 on failure
func parseKind(w http.ResponseWriter, r *http.Request) (extension.Kind, bool) {
	raw, ok := httputil.ParsePathStringOrError(w, r, "kind")
	if !ok {
		return "", false
	}
	kind, err := extension.ParseKind(raw)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return "", false
	}
	return kind, true
}

// writeRegistryError maps registry errors to status codes
func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extension.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, registry.ErrDisabled):
		httputil.WriteConflict(w, err.Error())
	default:
		var parseErr *extension.ParseError
		var loadErr *extension.LoadError
		switch {
		case errors.As(err, &loadErr):
			httputil.WriteDetailedError(w, http.StatusConflict, err, map[string]string{
				"extension": loadErr.Key.String(),
				"stage":     loadErr.Stage,
			})
		case errors.As(err, &parseErr):
			httputil.WriteDetailedError(w, http.StatusConflict, err, map[string]string{
				"kind": string(parseErr.Kind),
				"ref":  parseErr.Ref,
			})
		default:
			httputil.WriteBadRequest(w, err.Error())
		}
	}
}

// listAllExtensions handles GET /v1/extensions
func (s *Server) listAllExtensions(w http.ResponseWriter, r *http.Request) {
	all := make(map[extension.Kind][]ExtensionView, len(extension.Kinds()))
	for _, kind := range extension.Kinds() {
		all[kind] = newExtensionViews(s.registry.List(kind))
	}
	httputil.WriteSuccess(w, all)
}

// listExtensions handles GET /v1/extensions/{kind}?usable=true
func (s *Server) listExtensions(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	usableOnly, err := httputil.ParseQueryBool(r, "usable", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entries := s.registry.List(kind)
	if usableOnly {
		usable := entries[:0:0]
		for _, e := range entries {
			if e.Usable() {
				usable = append(usable, e)
			}
		}
		entries = usable
	}
	httputil.WriteSuccess(w, newExtensionViews(entries))
}

// getExtension handles GET /v1/extensions/{kind}/{id}
func (s *Server) getExtension(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	entry, err := s.registry.Get(kind, id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	httputil.WriteSuccess(w, newExtensionView(entry))
}

// enableExtension handles POST /v1/extensions/{kind}/{id}/enable
func (s *Server) enableExtension(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, true)
}

// disableExtension handles POST /v1/extensions/{kind}/{id}/disable
func (s *Server) disableExtension(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, false)
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.registry.SetEnabled(kind, id, enabled); err != nil {
		writeRegistryError(w, err)
		return
	}

	entry, err := s.registry.Get(kind, id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	httputil.WriteSuccess(w, newExtensionView(entry))
}

// resetEnabled handles DELETE /v1/extensions/{kind}/{id}/enabled
func (s *Server) resetEnabled(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.registry.ResetEnabled(kind, id); err != nil {
		writeRegistryError(w, err)
		return
	}

	entry, err := s.registry.Get(kind, id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	httputil.WriteSuccess(w, newExtensionView(entry))
}

// setOrder handles PUT /v1/extensions/{kind}/order
func (s *Server) setOrder(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	var req OrderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.registry.SetOrder(kind, req.IDs); err != nil {
		writeRegistryError(w, err)
		return
	}
	httputil.WriteSuccess(w, newExtensionViews(s.registry.List(kind)))
}

// moveExtension handles POST /v1/extensions/{kind}/move
func (s *Server) moveExtension(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	var req MoveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.registry.Move(kind, req.From, req.To); err != nil {
		writeRegistryError(w, err)
		return
	}
	httputil.WriteSuccess(w, newExtensionViews(s.registry.List(kind)))
}

// getActive handles GET /v1/active
func (s *Server) getActive(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.registry.Active()
	if !ok {
		httputil.WriteNotFoundError(w, fmt.Sprintf("no active %s extension", extension.PrimaryKind))
		return
	}
	httputil.WriteSuccess(w, newExtensionView(entry))
}

// setActive handles PUT /v1/active
func (s *Server) setActive(w http.ResponseWriter, r *http.Request) {
	var req ActiveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ID == "" {
		httputil.WriteBadRequest(w, "id is required")
		return
	}

	if err := s.registry.SetActive(req.ID); err != nil {
		writeRegistryError(w, err)
		return
	}
	s.getActive(w, r)
}

// getConnectivity handles GET /v1/connectivity
func (s *Server) getConnectivity(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, ConnectivityRequest{Online: s.registry.Connectivity()})
}

// setConnectivity handles PUT /v1/connectivity
func (s *Server) setConnectivity(w http.ResponseWriter, r *http.Request) {
	var req ConnectivityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	s.registry.SetConnectivity(req.Online)
	httputil.WriteSuccess(w, req)
}

// checkUpdates handles POST /v1/updates/check
func (s *Server) checkUpdates(w http.ResponseWriter, r *http.Request) {
	if s.updates == nil {
		httputil.WriteServiceUnavailable(w, "update checks are disabled")
		return
	}

	report, err := s.updates.CheckNow(r.Context())
	if errors.Is(err, updater.ErrCheckInProgress) {
		httputil.WriteConflict(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, newReportView(report))
}

// listMessages handles GET /v1/messages?limit=N
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", defaultMessageLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if limit < 1 {
		httputil.WriteBadRequest(w, "limit must be positive")
		return
	}

	views := make([]MessageView, 0)
	if s.messages != nil {
		for _, m := range s.messages.Recent(limit) {
			views = append(views, newMessageView(m))
		}
	}
	httputil.WriteSuccess(w, views)
}
