// datasets.go — обработчики загрузки, выгрузки и отметок наборов данных.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/carepoint/internal/api/errors"
	"github.com/bigkaa/carepoint/internal/domain/model"
	"github.com/bigkaa/carepoint/internal/service"
)

// DatasetManager — операции сервиса наборов, нужные HTTP API.
type DatasetManager interface {
	Summaries() []service.DatasetSummary
	Load(ctx context.Context, tag model.DatasetTag, path string) (*service.LoadResult, error)
	Export(ctx context.Context, tag model.DatasetTag) (*service.ExportResult, error)
	MarkHandled(tag model.DatasetTag, id string, value bool) (*model.Record, error)
	Lookup(id string) (*service.LookupResult, error)
}

// loadRequest — тело POST /api/v1/datasets/{tag}/load.
type loadRequest struct {
	Path string `json:"path"`
}

// statusRequest — тело PUT /api/v1/datasets/{tag}/records/{id}/status.
// Pointer, чтобы отличить отсутствующее поле от false.
type statusRequest struct {
	Status *bool `json:"status"`
}

// DatasetsHandler — обработчик endpoints наборов данных.
type DatasetsHandler struct {
	svc    DatasetManager
	logger *slog.Logger
}

// NewDatasetsHandler создаёт обработчик endpoints наборов данных.
func NewDatasetsHandler(svc DatasetManager, logger *slog.Logger) *DatasetsHandler {
	return &DatasetsHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "datasets_handler")),
	}
}

// ListDatasets обрабатывает GET /api/v1/datasets.
func (h *DatasetsHandler) ListDatasets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": h.svc.Summaries(),
	})
}

// LoadDataset обрабатывает POST /api/v1/datasets/{tag}/load.
func (h *DatasetsHandler) LoadDataset(w http.ResponseWriter, r *http.Request) {
	tag, ok := datasetTag(w, r)
	if !ok {
		return
	}
	var req loadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		apierrors.ValidationError(w, "поле path обязательно")
		return
	}

	result, err := h.svc.Load(r.Context(), tag, req.Path)
	if err != nil {
		h.logger.Warn("Набор данных не загружен",
			slog.String("dataset", string(tag)),
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)
		apierrors.WriteFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExportDataset обрабатывает POST /api/v1/datasets/{tag}/export.
func (h *DatasetsHandler) ExportDataset(w http.ResponseWriter, r *http.Request) {
	tag, ok := datasetTag(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Export(r.Context(), tag)
	if err != nil {
		apierrors.WriteFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// SetRecordStatus обрабатывает PUT /api/v1/datasets/{tag}/records/{id}/status.
func (h *DatasetsHandler) SetRecordStatus(w http.ResponseWriter, r *http.Request) {
	tag, ok := datasetTag(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if req.Status == nil {
		apierrors.ValidationError(w, "поле status обязательно")
		return
	}

	rec, err := h.svc.MarkHandled(tag, id, *req.Status)
	if err != nil {
		apierrors.WriteFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// datasetTag извлекает метку набора из пути. При ошибке ответ уже записан.
func datasetTag(w http.ResponseWriter, r *http.Request) (model.DatasetTag, bool) {
	tag, err := model.ParseDatasetTag(chi.URLParam(r, "tag"))
	if err != nil {
		apierrors.NotFound(w, err.Error())
		return "", false
	}
	return tag, true
}
