// patients.go — обработчик поиска пациента по номеру документа.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/carepoint/internal/api/errors"
)

// PatientsHandler — обработчик поиска пациентов.
type PatientsHandler struct {
	svc DatasetManager
}

// NewPatientsHandler создаёт обработчик поиска пациентов.
func NewPatientsHandler(svc DatasetManager) *PatientsHandler {
	return &PatientsHandler{svc: svc}
}

// LookupPatient обрабатывает GET /api/v1/patients/{id}.
// Записи просроченных наборов возвращаются с флагом stale и предупреждением.
func (h *PatientsHandler) LookupPatient(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
