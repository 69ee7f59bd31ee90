package api

import (
	"errors"
	"net/http"

	"datascope/internal/metadata"
	"datascope/internal/relgraph"
)

// httpStatusFromError maps domain errors to HTTP status codes.
func httpStatusFromError(err error) int {
	var notFound *metadata.NotFoundError
	var noRelationship *relgraph.NoRelationshipError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &noRelationship):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
