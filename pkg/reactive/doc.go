// Package reactive provides the single-writer observable container used for every
// piece of derived state in trellis.
//
// # Overview
//
// A Value has exactly one producer which recomputes the full snapshot and publishes
// it with Set. Consumers either read the latest snapshot with Get or subscribe.
// Subscriptions conflate: a consumer that falls behind only ever sees the newest
// snapshot, never a half-applied one.
//
// # Usage Example
//
//	v := reactive.NewValue([]string{})
//	sub := v.Subscribe()
//	defer sub.Close()
//
//	v.Set([]string{"a", "b"})
//	latest := <-sub.C
//
// Watch blocks until ctx is done, running the callback for every published snapshot
// on the calling goroutine:
//
//	go v.Watch(ctx, func(list []string) {
//		render(list)
//	})
//
// SubscribeVersions and WatchVersions deliver Snapshot values carrying the version
// as well. Version 0 is the initial value, so a consumer can wait for the first
// real publication.
//
// # Related Packages
//
//   - pkg/pipeline: composer output
//   - pkg/registry: per-kind lists and active selection
package reactive
