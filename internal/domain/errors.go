package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类
type ErrorKind string

const (
	// KindValidation 输入不合法：日期格式错误、start_date > end_date、未知岗位
	KindValidation ErrorKind = "ValidationError"
	// KindNotFound 合并时引用了不存在的 person_id
	KindNotFound ErrorKind = "NotFoundError"
	// KindExternalService 外部服务（表格、数据库、Redis）失败；核心层不重试
	KindExternalService ErrorKind = "ExternalServiceError"
	// KindInvariant 数据不一致，例如家庭组只有一个成员
	KindInvariant ErrorKind = "InvariantViolation"
)

// Error 领域错误
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewValidationError 构造 ValidationError
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError 构造 NotFoundError
func NewNotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewExternalServiceError 包装外部服务错误
func NewExternalServiceError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindExternalService, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewInvariantViolation 构造 InvariantViolation
func NewInvariantViolation(format string, args ...any) *Error {
	return &Error{Kind: KindInvariant, Message: fmt.Sprintf(format, args...)}
}

// KindOf 返回错误链上第一个领域错误的分类，没有则返回空串
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind 判断错误链上是否有指定分类的领域错误
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
