// Пакет fault — таксономия ошибок ядра.
//
// Каждая ошибка относится к одному из видов:
//   - NOT_FOUND — файл или запись отсутствует
//   - FORMAT_ERROR — не найден заголовок или нет ни одной записи
//   - PRECONDITION_FAILED — операция вызвана до нужного состояния
//   - REMOTE_ERROR — удалённый сервис недоступен или вернул отказ
//   - STALE_STATE — набор данных или устройство просрочены (сигнал, не отказ)
//
// Вид проверяется через errors.Is с сентинелами ErrNotFound и т.д.
package fault

import (
	"errors"
	"fmt"
)

// Kind — машиночитаемый вид ошибки.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindFormat       Kind = "FORMAT_ERROR"
	KindPrecondition Kind = "PRECONDITION_FAILED"
	KindRemote       Kind = "REMOTE_ERROR"
	KindStale        Kind = "STALE_STATE"
)

// Сентинелы для errors.Is.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrFormat       = &Error{Kind: KindFormat}
	ErrPrecondition = &Error{Kind: KindPrecondition}
	ErrRemote       = &Error{Kind: KindRemote}
	ErrStale        = &Error{Kind: KindStale}
)

// Error — ошибка ядра с видом и человекочитаемым описанием.
type Error struct {
	Kind    Kind   // Вид ошибки
	Message string // Описание для вызывающего кода
	Err     error  // Исходная причина (может быть nil)
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
}

// Unwrap возвращает исходную причину.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по виду, что позволяет errors.Is(err, fault.ErrRemote).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NotFound создаёт ошибку вида NOT_FOUND.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Format создаёт ошибку вида FORMAT_ERROR.
func Format(format string, args ...any) *Error {
	return &Error{Kind: KindFormat, Message: fmt.Sprintf(format, args...)}
}

// Precondition создаёт ошибку вида PRECONDITION_FAILED.
func Precondition(format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

// Remote создаёт ошибку вида REMOTE_ERROR. message передаётся как есть:
// это либо сообщение сервера, либо общее сообщение о сбое сети.
func Remote(message string, cause error) *Error {
	return &Error{Kind: KindRemote, Message: message, Err: cause}
}

// Stale создаёт ошибку вида STALE_STATE.
func Stale(format string, args ...any) *Error {
	return &Error{Kind: KindStale, Message: fmt.Sprintf(format, args...)}
}

// Wrap оборачивает причину в ошибку заданного вида.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf возвращает вид ошибки или пустую строку, если err не из этого пакета.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf возвращает описание ошибки без префикса вида.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
