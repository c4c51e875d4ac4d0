// handler.go — APIHandler собирает доменные handlers и монтирует маршруты
// локального HTTP API точки обслуживания.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxRequestBody — предел размера JSON-тела запроса.
const maxRequestBody = 64 << 10

// APIHandler — единая точка монтирования всех endpoints.
type APIHandler struct {
	device   *DeviceHandler
	datasets *DatasetsHandler
	patients *PatientsHandler
	health   *HealthHandler
	metrics  http.Handler
}

// NewAPIHandler создаёт handler для всех endpoints.
// metrics — обработчик /metrics (nil — маршрут не монтируется).
func NewAPIHandler(
	device *DeviceHandler,
	datasets *DatasetsHandler,
	patients *PatientsHandler,
	health *HealthHandler,
	metrics http.Handler,
) *APIHandler {
	return &APIHandler{
		device:   device,
		datasets: datasets,
		patients: patients,
		health:   health,
		metrics:  metrics,
	}
}

// Mount регистрирует маршруты в роутере.
func (h *APIHandler) Mount(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/device", h.device.GetDevice)
		r.Post("/device/register", h.device.RegisterDevice)
		r.Post("/device/validate", h.device.ValidateDevice)

		r.Get("/datasets", h.datasets.ListDatasets)
		r.Post("/datasets/{tag}/load", h.datasets.LoadDataset)
		r.Post("/datasets/{tag}/export", h.datasets.ExportDataset)
		r.Put("/datasets/{tag}/records/{id}/status", h.datasets.SetRecordStatus)

		r.Get("/patients/{id}", h.patients.LookupPatient)
	})
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает JSON-тело запроса с ограничением размера.
// Неизвестные поля не допускаются.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("некорректный JSON: %w", err)
	}
	return nil
}
