// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It adapts HTTP concerns to the task manager's
// operations: submission, status, progress, cancellation and result
// retrieval.
package api
