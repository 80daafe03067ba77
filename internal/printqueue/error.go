package printqueue

import (
	"errors"
	"fmt"
	"net/http"

	"tampa-backend/internal/printers"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

// 印刷中は数量変更・削除・クリアを受け付けない
var errPrinting = ErrConflict("queue is printing; wait for the batch to finish")

func toAPIError(err error) *APIError {
	var api *APIError
	switch {
	case errors.As(err, &api):
		return api
	case errors.Is(err, ErrItemNotFound):
		return ErrNotFound(err.Error())
	case errors.Is(err, ErrBatchInProgress):
		return ErrConflict(err.Error())
	case errors.Is(err, printers.ErrPrinterNotFound):
		return ErrNotFound(err.Error())
	}
	return ErrInternal(err.Error())
}

func toHTTPStatus(err error) int {
	switch toAPIError(err).Code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type errDTO struct {
	Error *APIError `json:"error"`
}

func newErrDTO(err error) errDTO { return errDTO{Error: toAPIError(err)} }
