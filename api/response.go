package api

import (
	"encoding/json"
	"net/http"

	"github.com/theoremus-urban-solutions/transitcore/errs"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	writeJSON(w, statusFor(kind), ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.NotFound:
		return http.StatusNotFound
	case errs.InvalidArgument:
		return http.StatusBadRequest
	case errs.Unavailable:
		return http.StatusServiceUnavailable
	case errs.FetchFailed, errs.ParseFailed, errs.EmptySnapshotRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
