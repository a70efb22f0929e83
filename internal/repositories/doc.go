// Package repositories implements SQLite persistence for the canonical entities and the job queue.
//
// Key Implementations:
//   - [ArtistRepository], [VenueRepository], [ShowRepository], [SongRepository] : entity rows with
//     one lookup per provider ID for identity resolution
//   - [SetlistRepository] : predicted and played setlists, with whole-list song replacement
//   - [VoteRepository] : insert-or-ignore votes with a conditional counter increment
//   - [OperationRepository] : orchestrator operation records
//   - [JobRepository] : the durable sync queue on SQLite
//   - [PostgresJobRepository] : the same queue on PostgreSQL using FOR UPDATE SKIP LOCKED
//
// Provider IDs are written as NULL when empty so their UNIQUE constraints only bind known IDs.
// A write that trips one of those constraints returns an error wrapping [shared.ErrConflict];
// lookups that miss return an error wrapping [shared.ErrNotFound].
package repositories
