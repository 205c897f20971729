// Package pipeline connects discovery to the registry.
//
// A Pipeline runs one Source through a Parser and a Loader and publishes the
// resulting []extension.Result every time the source changes. Lazy instances are
// carried across scans while an extension's identity and fingerprint stay the
// same, so unrelated discovery events never re-create them.
//
// Compose fans several pipelines of one kind into a single list. Merge is the pure
// deduplication step behind it:
//
//	BuiltIn > InstalledPackage > SideloadedFile
//
// Ties go to the pipeline submitted first. The winner of a group takes the position
// of the group's first occurrence; failed results keep their place.
package pipeline
