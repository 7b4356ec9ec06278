// Package errs 定义遥测存储对外暴露的错误分类
package errs

import "errors"

// Code 机器可读的错误码
type Code string

const (
	// CodeValidation 写入时字段缺失或非法，调用方错误，不应自动重试
	CodeValidation Code = "VALIDATION_ERROR"

	// CodeRequest 查询参数非法，调用方错误
	CodeRequest Code = "REQUEST_ERROR"

	// CodeStorageUnavailable 存储层暂时不可用，可配合指数退避重试
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// Error 带错误码的领域错误
type Error struct {
	Code      Code   // 错误码
	Message   string // 错误描述
	Field     string // 出错的字段或参数名（可选）
	Retryable bool   // 是否建议重试（仅对 CodeStorageUnavailable 有意义）
	Cause     error  // 底层错误
}

// 按错误码匹配的哨兵错误，配合 errors.Is 使用
var (
	ErrValidation         = &Error{Code: CodeValidation}
	ErrRequest            = &Error{Code: CodeRequest}
	ErrStorageUnavailable = &Error{Code: CodeStorageUnavailable}
)

// Error 实现 error 接口
func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + "：" + msg
	}
	if e.Cause != nil {
		msg += "：" + e.Cause.Error()
	}
	return msg
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误码判断是否匹配
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Validation 创建写入校验错误
func Validation(field, message string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: message}
}

// Request 创建查询参数错误
func Request(field, message string) *Error {
	return &Error{Code: CodeRequest, Field: field, Message: message}
}

// Unavailable 创建存储不可用错误
func Unavailable(message string, retryable bool, cause error) *Error {
	return &Error{
		Code:      CodeStorageUnavailable,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// As 取出错误链中的 *Error
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable 判断错误是否为可重试的存储错误
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Code == CodeStorageUnavailable && e.Retryable
}
