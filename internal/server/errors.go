package server

import (
	"context"
	"errors"
	"net/http"

	"FightPool/internal/ingestion"
	"FightPool/internal/state"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// notFoundCodes are State rejections that mean the record does not exist.
var notFoundCodes = map[string]bool{
	state.ErrMatchNotFound.Code:  true,
	state.ErrBetNotFound.Code:    true,
	state.ErrNotInitialized.Code: true,
}

// classify maps an error to its gRPC code and HTTP status.
func classify(err error) (codes.Code, int) {
	var br *badRequest
	switch {
	case errors.As(err, &br), errors.Is(err, ingestion.ErrMalformed):
		return codes.InvalidArgument, http.StatusBadRequest
	case errors.Is(err, ErrNotLeader):
		return codes.Unavailable, http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return codes.Canceled, 499
	}

	switch state.KindOf(err) {
	case state.KindAuthorization:
		return codes.PermissionDenied, http.StatusForbidden
	case state.KindState:
		if notFoundCodes[state.CodeOf(err)] {
			return codes.NotFound, http.StatusNotFound
		}
		return codes.FailedPrecondition, http.StatusConflict
	case state.KindValidation:
		return codes.InvalidArgument, http.StatusUnprocessableEntity
	case state.KindTiming:
		return codes.FailedPrecondition, http.StatusPreconditionFailed
	case state.KindArithmetic:
		return codes.OutOfRange, http.StatusUnprocessableEntity
	case state.KindConflict:
		return codes.AlreadyExists, http.StatusConflict
	case state.KindInsufficientVault:
		return codes.FailedPrecondition, http.StatusUnprocessableEntity
	default:
		return codes.Internal, http.StatusInternalServerError
	}
}

func grpcStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	code, _ := classify(err)
	return status.Error(code, err.Error())
}

// errorBody is the JSON error shape of the HTTP surface.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  string `json:"code,omitempty"`
}

func newErrorBody(err error) errorBody {
	body := errorBody{Error: err.Error()}
	var de *state.Error
	if errors.As(err, &de) {
		body.Kind = de.Kind.String()
		body.Code = de.Code
	}
	return body
}
