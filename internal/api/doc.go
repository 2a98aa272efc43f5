// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between external clients
// and the apply service.
//
// Every error response carries a safe message and a category
// (missing_profile, incomplete_profile, automation_failure, not_found,
// unauthorized, invalid_request or internal). Technical detail stays in the
// logs.
package api
