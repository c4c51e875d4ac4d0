// Пакет errors — ответы с ошибками в едином формате.
// Формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError или WriteFault.
package errors //nolint:revive // конфликт имени со stdlib, пакет импортируется под псевдонимом apierrors

import (
	"encoding/json"
	"net/http"

	"github.com/bigkaa/carepoint/internal/domain/fault"
)

// Коды ошибок HTTP API.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeFormatError        = "FORMAT_ERROR"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeRemoteError        = "REMOTE_ERROR"
	CodeStaleState         = "STALE_STATE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// WriteFault переводит ошибку ядра в HTTP-ответ по её виду.
// Ошибки не из пакета fault считаются внутренними.
func WriteFault(w http.ResponseWriter, err error) {
	msg := fault.MessageOf(err)
	switch fault.KindOf(err) {
	case fault.KindNotFound:
		WriteError(w, http.StatusNotFound, CodeNotFound, msg)
	case fault.KindFormat:
		WriteError(w, http.StatusUnprocessableEntity, CodeFormatError, msg)
	case fault.KindPrecondition:
		WriteError(w, http.StatusConflict, CodePreconditionFailed, msg)
	case fault.KindRemote:
		WriteError(w, http.StatusBadGateway, CodeRemoteError, msg)
	case fault.KindStale:
		WriteError(w, http.StatusConflict, CodeStaleState, msg)
	default:
		InternalError(w, msg)
	}
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
