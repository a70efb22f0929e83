// Package tasks implements the entity sync handlers and the orchestrator that runs them interactively.
//
// # Handlers
//
// [Engine.Handle] dispatches a [models.SyncJob] to the handler for its entity type. Every handler follows
// the same steps:
//
//  1. Resolve the internal ID through the ordered identity strategies
//  2. Return a fresh row unchanged unless the run is forced
//  3. Fetch every applicable provider concurrently; a failing provider is logged and skipped
//  4. Merge by the configured [Precedence] and upsert, resolving insert races through external-ID
//     unique constraints
//  5. Cascade dependent work through the durable queue one priority step lower
//
// Artists cascade their song catalog, upcoming shows and historical setlists. Shows enqueue unknown
// artists and venues and keep a predicted setlist seeded with the artist's top songs. Setlists need
// their artist and report a [shared.DependencyError] until it exists.
//
// # Orchestrator
//
// [Orchestrator.Run] executes a batch of [Task] values synchronously in bounded parallel batches. The
// cascade_sync operation also runs discovered children in-process, bounded by the cascade depth.
//
// # Progress Reporting
//
// Orchestrator runs and bulk exports send [ProgressUpdate] values on an optional channel. Sends use
// select with default so a slow reader never blocks a run.
package tasks
