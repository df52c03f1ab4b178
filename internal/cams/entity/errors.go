package entity

import (
	"errors"
	"fmt"
)

// 领域错误类别
const (
	ErrKindNotFound           = "not_found"
	ErrKindConflict           = "conflict"
	ErrKindPreconditionFailed = "precondition_failed"
	ErrKindForbidden          = "forbidden"
	ErrKindValidation         = "validation"
)

// Error 领域错误
// Conflict/PreconditionFailed必须带上当前状态和冲突记录ID，
// 调用方据此决定是否换目标重试，不允许只返回布尔结果
type Error struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Status     string `json:"status,omitempty"`      // 相关记录当前状态
	ConflictID string `json:"conflict_id,omitempty"` // 冲突的报修单/工单/任务ID
}

func (e *Error) Error() string {
	if e.Status != "" && e.ConflictID != "" {
		return fmt.Sprintf("%s (当前状态=%s, 冲突记录=%s)", e.Message, e.Status, e.ConflictID)
	}
	if e.Status != "" {
		return fmt.Sprintf("%s (当前状态=%s)", e.Message, e.Status)
	}
	return e.Message
}

// NewNotFound 记录不存在
func NewNotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflict 状态冲突（已终结或不兼容的状态）
func NewConflict(status, conflictID, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindConflict, Message: fmt.Sprintf(format, args...), Status: status, ConflictID: conflictID}
}

// NewPrecondition 业务前置条件不满足
func NewPrecondition(status, conflictID, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindPreconditionFailed, Message: fmt.Sprintf(format, args...), Status: status, ConflictID: conflictID}
}

// NewForbidden 操作人不具备该迁移的领域权限
func NewForbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NewValidation 入参非法
func NewValidation(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf 取领域错误类别，非领域错误返回空串
func KindOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
