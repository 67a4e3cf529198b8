package circulation

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
)

// -------------- Error model & mapping --------------

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeLimitExceeded   Code = "LIMIT_EXCEEDED"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT" // 貸出中・ロック待ちタイムアウトなど
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeInternal        Code = "INTERNAL"
)

// APIError は利用者に返すエラー。IDs には原因になった蔵書ID・明細IDを入れる
type APIError struct {
	Code    Code
	Message string
	IDs     []string
}

func (e *APIError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s %v", e.Code, e.Message, e.IDs)
}

func ErrInvalid(msg string) *APIError { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrLimit(msg string) *APIError   { return &APIError{Code: CodeLimitExceeded, Message: msg} }
func ErrNotFound(msg string, ids ...string) *APIError {
	return &APIError{Code: CodeNotFound, Message: msg, IDs: ids}
}
func ErrConflict(msg string, ids ...string) *APIError {
	return &APIError{Code: CodeConflict, Message: msg, IDs: ids}
}
func ErrUnauthorized(msg string) *APIError { return &APIError{Code: CodeUnauthorized, Message: msg} }
func ErrInternal(msg string) *APIError     { return &APIError{Code: CodeInternal, Message: msg} }

func asAPIError(err error) (*APIError, bool) {
	var api *APIError
	ok := errors.As(err, &api)
	return api, ok
}

// IsCode: err が指定コードの APIError か
func IsCode(err error, code Code) bool {
	api, ok := asAPIError(err)
	return ok && api.Code == code
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument, CodeLimitExceeded:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict:
			return http.StatusConflict
		case CodeUnauthorized:
			return http.StatusForbidden
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

func copyIDStrings(ids []int64) []string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := make([]string, len(sorted))
	for i, id := range sorted {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
