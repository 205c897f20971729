package extension

import (
	"context"
	"errors"
)

// ErrNoBridgeHandler is returned by a Bridge when the host has no UI attached
var ErrNoBridgeHandler = errors.New("no UI bridge handler attached")

// LoginField describes one input of an interactive login form
type LoginField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Secret   bool   `json:"secret"`
	Optional bool   `json:"optional"`
}

// LoginForm is a login flow requested by an extension
type LoginForm struct {
	Title  string       `json:"title"`
	URL    string       `json:"url,omitempty"`
	Fields []LoginField `json:"fields,omitempty"`
}

// Bridge lets an extension reach the host UI. Every bridge is bound to the identity
// of the extension it was handed to.
type Bridge interface {
	Owner() Key
	RequestLogin(ctx context.Context, form LoginForm) (map[string]string, error)
	OpenURL(ctx context.Context, url string) error
}

// BridgeHandler is implemented by the host presentation layer
type BridgeHandler interface {
	HandleLogin(ctx context.Context, owner Key, form LoginForm) (map[string]string, error)
	HandleOpenURL(ctx context.Context, owner Key, url string) error
}

// BridgeHost hands out bridges bound to extension identities
type BridgeHost struct {
	handler BridgeHandler
}

// NewBridgeHost creates a BridgeHost; handler may be nil for headless hosts
func NewBridgeHost(handler BridgeHandler) *BridgeHost {
	return &BridgeHost{handler: handler}
}

// Bind returns a bridge owned by key
func (h *BridgeHost) Bind(key Key) Bridge {
	return &boundBridge{owner: key, host: h}
}

type boundBridge struct {
	owner Key
	host  *BridgeHost
}

func (b *boundBridge) Owner() Key { return b.owner }

func (b *boundBridge) RequestLogin(ctx context.Context, form LoginForm) (map[string]string, error) {
	if b.host == nil || b.host.handler == nil {
		return nil, ErrNoBridgeHandler
	}
	return b.host.handler.HandleLogin(ctx, b.owner, form)
}

func (b *boundBridge) OpenURL(ctx context.Context, url string) error {
	if b.host == nil || b.host.handler == nil {
		return ErrNoBridgeHandler
	}
	return b.host.handler.HandleOpenURL(ctx, b.owner, url)
}
