package errcode

import (
	"errors"
	"net/http"
)

// Kind 对错误分类，API 边界据此决定 HTTP 状态码。
type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthenticated
	Forbidden
	NotFound
	Conflict
	// UpstreamRejected 表示第三方明确拒绝了请求（例如支付网关返回 status=false）。
	UpstreamRejected
	// UpstreamUnavailable 表示第三方不可达或超时。
	UpstreamUnavailable
)

// Error 携带分类、对外消息与内部原因。Message 会返回给客户端，Err 只写日志。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap 为底层错误附加分类与对外消息。
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Invalid(msg string) *Error   { return New(Validation, msg) }
func Missing(msg string) *Error   { return New(NotFound, msg) }
func Denied(msg string) *Error    { return New(Forbidden, msg) }
func Duplicate(msg string) *Error { return New(Conflict, msg) }
func Failure(msg string, err error) *Error {
	return Wrap(Internal, msg, err)
}

// KindOf 返回错误链上第一个 *Error 的分类，未分类的错误视为 Internal。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is 判断错误是否属于指定分类。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message 返回可以安全暴露给客户端的消息。
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus 将错误映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation, UpstreamRejected:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
