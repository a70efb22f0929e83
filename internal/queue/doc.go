// package queue drives the durable sync queue.
//
// # Processing
//
// A [Processor] claims one job at a time from a [Store], hands it to the entity
// handler and settles it: success completes the job, not-found and validation
// errors fail it for good, anything else is retried with backoff until the job
// runs out of attempts.
//
// # Services
//
// [Worker] polls the store on an interval and [Scheduler] runs the cron sweeps
// (stuck-job reclaim, stale-artist refresh, unlinked-show relink). Both are
// suture services and run under a [Tree] next to the HTTP server.
package queue
