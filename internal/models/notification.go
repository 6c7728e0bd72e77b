package models

import (
	"errors"
	"fmt"
)

// NotificationLevel is the severity of a user-facing notification.
type NotificationLevel string

const (
	NotifyError   NotificationLevel = "error"
	NotifySuccess NotificationLevel = "success"
	NotifyInfo    NotificationLevel = "info"
)

// MsgUploadSucceeded confirms that a summary was stored.
const MsgUploadSucceeded = "Database processed successfully!"

// Notification is a transient message produced by one interaction cycle.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
}

// ErrorNotice builds an error notification.
func ErrorNotice(msg string) Notification {
	return Notification{Level: NotifyError, Message: msg}
}

// SuccessNotice builds a success notification.
func SuccessNotice(msg string) Notification {
	return Notification{Level: NotifySuccess, Message: msg}
}

// NoticeFor turns an error from an interaction cycle into the message shown
// to the user.
func NoticeFor(err error) Notification {
	var (
		pre *PreconditionError
		pe  *ParseError
		ae  *ApiError
	)
	switch {
	case errors.As(err, &pre):
		return ErrorNotice(pre.Message)
	case errors.As(err, &pe):
		return ErrorNotice(pe.Error())
	case errors.As(err, &ae):
		return ErrorNotice(fmt.Sprintf("Error from model API: %v", ae.Err))
	default:
		return ErrorNotice(fmt.Sprintf("Error processing file: %v", err))
	}
}
