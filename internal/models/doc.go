// Package models defines the canonical entities and the sync job types shared by the queue, handlers and stores.
//
// The package contains three groups of types:
//
// 1. Canonical entities, each carrying an internal ID plus zero or more provider IDs
//   - [Artist] : Ticketmaster attraction ID, Spotify ID and MusicBrainz ID (used by setlist.fm)
//   - [Venue] : Ticketmaster venue ID and setlist.fm venue ID
//   - [Show] : Ticketmaster event ID, optional links to its artist and venue
//   - [Song] : Spotify track ID, owned by an artist
//   - [Setlist] / [SetlistSong] : predicted (votable) or played (setlist.fm) running orders
//
// 2. Queue types: [SyncJob], [EnqueueRequest], [JobFilter], [QueueStats]
//
// 3. Interactive sync types: [Operation] and [OperationRecord]
//
// Empty provider IDs are stored as NULL so the per-column unique constraints only apply to known IDs.
package models
