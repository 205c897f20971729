// Package registry owns the per-kind extension lists the host consumes.
//
// Each attached kind's composed discovery output is turned into a list of
// extension.Entry: instances are wrapped by the injector (one wrapper per
// underlying Lazy, so re-scans never re-initialize an unchanged extension), the
// persisted enabled overrides are applied and the list is sorted by the persisted
// priority order. Failed entries stay in the list, disabled, after every
// successfully discovered one.
//
// On every list change the registry re-selects the active music extension and
// re-supplies sibling lists to realized SiblingConsumers. Connectivity changes are
// pushed to realized ConnectivityAware instances. Both fan-outs only post to a
// per-instance mailbox while the registry lock is held; one goroutine per busy
// mailbox delivers the newest state, so a slow extension delays only itself. A
// missing required sibling set is reported once until it changes. Neither
// fan-out ever realizes an instance; only activation does, on the background
// worker pool.
//
// Preferences live in the settings store under the reserved "trellis" scope.
package registry
