// Package updater checks the release feeds of installed extensions and installs
// newer artifacts.
//
// A check run walks through these states:
//
//	Idle -> CheckingThrottle -> FetchingReleaseFeed -> ComparingVersion -> Downloading -> Installing -> Idle
//
// The throttle is a persisted last-check time; a forced run ignores it. Every
// extension that declares an update endpoint is checked concurrently and a
// failure of one never aborts the others. Failures are reported as
// *extension.UpdateError and are not retried within a run.
package updater
