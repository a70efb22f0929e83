// Package server provides HTTP routing, middleware and the JSON API of the sync engine.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [ChiRouter] implements it on a
// chi mux so routes can carry path parameters such as /api/jobs/{id}.
//
// [DefaultMiddleware] stacks request IDs, panic recovery, request logging and a per-IP rate limit
// (go-chi/httprate) sized by [server] requests_per_minute.
//
// # API
//
// [API] registers:
//   - POST /api/jobs enqueues a job (deduplicated per entity)
//   - GET /api/jobs, /api/jobs/{id}, /api/jobs/stats read the queue
//   - POST /api/jobs/process?limit=N drains up to N jobs synchronously
//   - POST /api/sync/orchestrate runs tasks through the orchestrator
//   - POST /api/votes records one vote
//   - GET /metrics and /health
//
// Failures are JSON {error, entityType, entityId}: validation errors map to 400, misses to 404 and
// everything else to 500.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # Supervision
//
// [Service] adapts an [http.Server] to suture's Serve(ctx) contract with graceful shutdown.
package server
