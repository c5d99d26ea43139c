package apperrors

import (
	"errors"
	"net/http"
)

// statusBySentinel is checked in order; the first match wins. Backend
// failures surface as 502 since the local API is a gateway to it.
var statusBySentinel = []struct {
	sentinel error
	status   int
}{
	{ErrValidation, http.StatusBadRequest},
	{ErrNotFound, http.StatusNotFound},
	{ErrConflict, http.StatusConflict},
	{ErrSubmission, http.StatusBadGateway},
	{ErrRetrieval, http.StatusBadGateway},
	{ErrCancel, http.StatusBadGateway},
}

// HTTPStatus maps an error to the status the local API answers with.
func HTTPStatus(err error) int {
	for _, m := range statusBySentinel {
		if errors.Is(err, m.sentinel) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
