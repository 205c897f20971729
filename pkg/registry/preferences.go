package registry

import (
	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/settings"
)

// PreferenceScope is the settings scope holding registry preferences
const PreferenceScope = "trellis"

// Preferences persists enabled overrides, priority order and the active selection
type Preferences struct {
	settings *settings.Settings
}

// NewPreferences reads and writes preferences in store's reserved scope
func NewPreferences(store *settings.Store) *Preferences {
	return &Preferences{settings: store.Named(PreferenceScope)}
}

func enabledKey(key extension.Key) string { return "enabled:" + key.String() }

func orderKey(kind extension.Kind) string { return "order:" + string(kind) }

func activeKey(kind extension.Kind) string { return "active:" + string(kind) }

// Enabled returns the override for key, if any
func (p *Preferences) Enabled(key extension.Key) (bool, bool) {
	return p.settings.GetBool(enabledKey(key))
}

// SetEnabled stores an override for key
func (p *Preferences) SetEnabled(key extension.Key, enabled bool) error {
	return p.settings.PutBool(enabledKey(key), enabled)
}

// ClearEnabled removes the override so the manifest default applies again
func (p *Preferences) ClearEnabled(key extension.Key) error {
	return p.settings.Delete(enabledKey(key))
}

// Order returns the persisted priority list of kind
func (p *Preferences) Order(kind extension.Kind) []string {
	ids, _ := p.settings.GetList(orderKey(kind))
	return ids
}

// SetOrder replaces the priority list of kind
func (p *Preferences) SetOrder(kind extension.Kind, ids []string) error {
	return p.settings.PutList(orderKey(kind), ids)
}

// Active returns the last selected id of kind
func (p *Preferences) Active(kind extension.Kind) (string, bool) {
	return p.settings.GetString(activeKey(kind))
}

// SetActive remembers id as the selection of kind
func (p *Preferences) SetActive(kind extension.Kind, id string) error {
	return p.settings.PutString(activeKey(kind), id)
}
