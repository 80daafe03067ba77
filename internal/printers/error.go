package printers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-sql-driver/mysql"
)

// ===== Error model =====
type Code string

const (
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeConnectionFailed      Code = "CONNECTION_FAILED"
	CodeUnsupportedConnection Code = "UNSUPPORTED_CONNECTION"
	CodePrintFailed           Code = "PRINT_FAILED"
	CodeInternal              Code = "INTERNAL"
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

var (
	ErrPrinterNotFound      = errors.New("printer not found")
	ErrBluetoothUnsupported = errors.New("bluetooth requires native bridge")
	ErrConnectionFailed     = errors.New("printer connection failed")
	ErrPrintFailed          = errors.New("print failed")
)

// sentinel → コード。永続化エラーはここに当たらず 500 のまま返す。
func codeOf(err error) (Code, bool) {
	switch {
	case errors.Is(err, ErrPrinterNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrBluetoothUnsupported):
		return CodeUnsupportedConnection, true
	case errors.Is(err, ErrConnectionFailed):
		return CodeConnectionFailed, true
	case errors.Is(err, ErrPrintFailed):
		return CodePrintFailed, true
	}
	var api *APIError
	if errors.As(err, &api) {
		return api.Code, true
	}
	return CodeInternal, false
}

func toHTTPStatus(err error) int {
	code, _ := codeOf(err)
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeConnectionFailed, CodePrintFailed:
		return http.StatusBadGateway
	case CodeUnsupportedConnection:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// mysqlConflict: 重複キーだけ 409 に変換し、それ以外はそのまま返す
func mysqlConflict(err error, msg string) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return ErrConflict(msg)
	}
	return err
}

type errDTO struct {
	Error *APIError `json:"error"`
}

func newErrDTO(err error) errDTO {
	var api *APIError
	if errors.As(err, &api) {
		return errDTO{Error: api}
	}
	code, _ := codeOf(err)
	return errDTO{Error: &APIError{Code: code, Message: err.Error()}}
}
