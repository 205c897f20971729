package api

import (
	"time"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/messages"
	"github.com/platinummonkey/trellis/pkg/updater"
)

// ExtensionView is the JSON form of a registry entry
type ExtensionView struct {
	Kind           extension.Kind `json:"kind"`
	ID             string         `json:"id"`
	Name           string         `json:"name,omitempty"`
	Version        string         `json:"version,omitempty"`
	Description    string         `json:"description,omitempty"`
	Author         string         `json:"author,omitempty"`
	IconURL        string         `json:"icon_url,omitempty"`
	UpdateEndpoint string         `json:"update_endpoint,omitempty"`
	Provenance     string         `json:"provenance"`
	Ref            string         `json:"ref,omitempty"`
	Enabled        bool           `json:"enabled"`
	Priority       int            `json:"priority"`
	State          string         `json:"state"`
	Error          string         `json:"error,omitempty"`
}

func newExtensionView(e extension.Entry) ExtensionView {
	m := e.Metadata
	view := ExtensionView{
		Kind:           m.Kind,
		ID:             m.ID,
		Name:           m.Name,
		Version:        m.Version,
		Description:    m.Description,
		Author:         m.Author,
		IconURL:        m.IconURL,
		UpdateEndpoint: m.UpdateEndpoint,
		Provenance:     m.Provenance.String(),
		Ref:            m.Ref,
		Enabled:        m.Enabled,
		Priority:       m.PriorityOrdinal,
		State:          extension.StateFailed.String(),
	}
	if e.Lazy != nil {
		view.State = e.Lazy.State().String()
		if err := e.Lazy.Err(); err != nil {
			view.Error = err.Error()
		}
	}
	if e.Err != nil {
		view.Error = e.Err.Error()
	}
	return view
}

func newExtensionViews(entries []extension.Entry) []ExtensionView {
	views := make([]ExtensionView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newExtensionView(e))
	}
	return views
}

// MessageView is the JSON form of a message channel entry
type MessageView struct {
	ID     string    `json:"id"`
	Level  string    `json:"level"`
	Text   string    `json:"text"`
	Source string    `json:"source,omitempty"`
	Time   time.Time `json:"time"`
}

func newMessageView(m messages.Message) MessageView {
	view := MessageView{ID: m.ID, Level: string(m.Level), Text: m.Text, Time: m.Time}
	if m.Source != (extension.Key{}) {
		view.Source = m.Source.String()
	}
	return view
}

// OutcomeView is the JSON form of one extension's update outcome
type OutcomeView struct {
	Extension string `json:"extension"`
	State     string `json:"state"`
	Current   string `json:"current,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Asset     string `json:"asset,omitempty"`
	Updated   bool   `json:"updated"`
	Error     string `json:"error,omitempty"`
}

// ReportView is the JSON form of an update run
type ReportView struct {
	Started   time.Time     `json:"started"`
	Throttled bool          `json:"throttled"`
	Outcomes  []OutcomeView `json:"outcomes"`
}

func newReportView(r updater.Report) ReportView {
	view := ReportView{Started: r.Started, Throttled: r.Throttled, Outcomes: make([]OutcomeView, 0, len(r.Outcomes))}
	for _, o := range r.Outcomes {
		ov := OutcomeView{
			Extension: o.Key.String(),
			State:     o.State.String(),
			Current:   o.Current,
			Tag:       o.Tag,
			Asset:     o.Asset,
			Updated:   o.Updated,
		}
		if o.Err != nil {
			ov.Error = o.Err.Error()
		}
		view.Outcomes = append(view.Outcomes, ov)
	}
	return view
}

// OrderRequest is the body of PUT /v1/extensions/{kind}/order
type OrderRequest struct {
	IDs []string `json:"ids"`
}

// MoveRequest is the body of POST /v1/extensions/{kind}/move
type MoveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// ActiveRequest is the body of PUT /v1/active
type ActiveRequest struct {
	ID string `json:"id"`
}

// ConnectivityRequest is the body of PUT /v1/connectivity
type ConnectivityRequest struct {
	Online bool `json:"online"`
}
