// Package http exposes the reconciler's operational HTTP surface.
//
// The router exposes the following endpoints:
//   - GET /healthz: liveness and store reachability. Response:
//     {"status","store","jobs":[{"name","spec","timezone","next"}]}. Returns 503
//     with status "degraded" when the store ping fails.
//   - GET /metrics: one collection of the job instruments as
//     {"metrics":[{"name","attributes","value","count"}]}.
//   - GET /jobs: lists registered jobs with their cadence and next firing.
//   - POST /jobs/{name}/run: runs a job immediately and returns its run report
//     as JSON. Requires `Authorization: Bearer <token>` when a trigger token is
//     configured. 404 for unknown jobs, 409 when the job is already running here
//     or locked by another replica.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
