// device.go — обработчики регистрации и валидации устройства.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/carepoint/internal/api/errors"
	"github.com/bigkaa/carepoint/internal/domain/model"
	"github.com/bigkaa/carepoint/internal/service"
)

// DeviceController — операции контроллера доверия, нужные HTTP API.
type DeviceController interface {
	Status() service.DeviceStatus
	Register(ctx context.Context, institutionCode string) (string, error)
	Validate(ctx context.Context, key string) (*model.ValidationPayload, error)
}

// registerRequest — тело POST /api/v1/device/register.
type registerRequest struct {
	InstitutionCode string `json:"institution_code"`
}

// registerResponse — ответ на регистрацию.
type registerResponse struct {
	Key    string               `json:"key"`
	Status service.DeviceStatus `json:"status"`
}

// validateRequest — тело POST /api/v1/device/validate.
type validateRequest struct {
	Key string `json:"key"`
}

// DeviceHandler — обработчик endpoints устройства.
type DeviceHandler struct {
	ctrl   DeviceController
	logger *slog.Logger
}

// NewDeviceHandler создаёт обработчик endpoints устройства.
func NewDeviceHandler(ctrl DeviceController, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{
		ctrl:   ctrl,
		logger: logger.With(slog.String("component", "device_handler")),
	}
}

// GetDevice обрабатывает GET /api/v1/device.
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

// RegisterDevice обрабатывает POST /api/v1/device/register.
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	code := strings.TrimSpace(req.InstitutionCode)
	if code == "" {
		apierrors.ValidationError(w, "поле institution_code обязательно")
		return
	}

	key, err := h.ctrl.Register(r.Context(), code)
	if err != nil {
		h.logger.Warn("Регистрация устройства не выполнена",
			slog.String("institution_code", code),
			slog.String("error", err.Error()),
		)
		apierrors.WriteFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Key:    key,
		Status: h.ctrl.Status(),
	})
}

// ValidateDevice обрабатывает POST /api/v1/device/validate.
func (h *DeviceHandler) ValidateDevice(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		apierrors.ValidationError(w, "поле key обязательно")
		return
	}

	if _, err := h.ctrl.Validate(r.Context(), key); err != nil {
		h.logger.Warn("Валидация устройства не выполнена",
			slog.String("error", err.Error()),
		)
		apierrors.WriteFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.ctrl.Status())
}
