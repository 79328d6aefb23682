package domain

import (
	"errors"
	"fmt"
)

// Kind - класс ошибки. Определяет, как её трактует клиент и в какой
// HTTP-статус она отображается на границе.
type Kind int

const (
	KindValidation    Kind = iota + 1 // некорректный запрос, не ретраится
	KindNotFound                      // пост/круг/пользователь не найден
	KindAuthorization                 // блокировка, не участник, недостаточно прав
	KindConflict                      // уже лайкнуто, уже заряжено сегодня
	KindDependency                    // кэш или модерация недоступны
)

// Стабильные коды ошибок, уходящие клиенту в поле code.
const (
	CodeBadRequest         = "BadRequest"
	CodePostNotFound       = "PostNotFound"
	CodePostDeleted        = "PostDeleted"
	CodeCircleNotFound     = "CircleNotFound"
	CodeUserNotFound       = "UserNotFound"
	CodePostRestricted     = "PostRestricted"
	CodeNotPermitted       = "NotPermitted"
	CodeBlockedByYou       = "BlockedByYou"
	CodeBlockedByThem      = "BlockedByThem"
	CodeBlockedMutual      = "BlockedMutual"
	CodeAlreadyLiked       = "AlreadyLiked"
	CodeAlreadyUnliked     = "AlreadyUnliked"
	CodeCannotChargeSelf   = "CannotChargeSelf"
	CodeAlreadyCharged     = "AlreadyChargedToday"
	CodeModerationRejected = "ModerationRejected"
	CodeModerationFailed   = "ModerationUnavailable"
)

// Error - типизированная ошибка с классом и стабильным кодом.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Is позволяет сравнивать ошибки через errors.Is по классу и коду.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// Wrap прикрепляет причину, сохраняя класс и код.
func (e *Error) Wrap(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, err: err}
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation - некорректный запрос.
func Validation(code, message string) *Error {
	return newError(KindValidation, code, message)
}

// NotFound - отсутствующая сущность.
func NotFound(code, message string) *Error {
	return newError(KindNotFound, code, message)
}

// Authorization - запрещено графом отношений или ролью.
func Authorization(code, message string) *Error {
	return newError(KindAuthorization, code, message)
}

// Conflict - повторная операция; клиенты трактуют как почти-успех.
func Conflict(code, message string) *Error {
	return newError(KindConflict, code, message)
}

// Dependency - внешний коллаборатор недоступен.
func Dependency(code, message string) *Error {
	return newError(KindDependency, code, message)
}

// KindOf возвращает класс ошибки, 0 для нетипизированных.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf возвращает стабильный код ошибки, пустую строку для нетипизированных.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
