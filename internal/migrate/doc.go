// Package migrate drives the avatar migration pipeline.
//
// The Orchestrator walks the person listing page by page, classifies each
// profile, and fans eligible ones out to a bounded worker pool that fetches
// the legacy image, transcodes it, derives the avatar names, writes the
// renditions, and produces a signed picture patch. Patches are pushed back in
// fixed chunks by the Syncer once the listing is exhausted. Per-profile
// failures skip that profile; listing failures abort the run. Every run ends
// with a Report describing what happened.
package migrate
