// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/carepoint/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// readyCheckTimeout — таймаут проверки хранилища состояния.
const readyCheckTimeout = 2 * time.Second

// Pinger — хранилище состояния с проверкой доступности.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyReporter — источник состояния внешних зависимостей (topologymetrics).
type DependencyReporter interface {
	Health() map[string]bool
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// store — хранилище состояния устройства
	store Pinger
	// exportDir — директория выгрузок (проверка на запись)
	exportDir string
	// deps — состояние зависимостей (nil — проверка не настроена)
	deps DependencyReporter
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(store Pinger, exportDir string, deps DependencyReporter) *HealthHandler {
	return &HealthHandler{
		version:   config.Version,
		store:     store,
		exportDir: exportDir,
		deps:      deps,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "carepoint",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Хранилище состояния и директория выгрузок обязательны. Недоступность
// сервиса лицензий даёт degraded: поиск по загруженным наборам работает офлайн.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	storeCheck := h.checkStore(r.Context())
	if storeCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	fsCheck := h.checkExportDir()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	checks := map[string]any{
		"state_store": storeCheck,
		"export_dir":  fsCheck,
	}

	if h.deps != nil {
		depCheck := h.checkDependencies()
		checks["dependencies"] = depCheck
		if depCheck["status"] != "ok" && overallStatus != statusFail {
			overallStatus = "degraded"
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "carepoint",
		"checks":    checks,
	})
}

// checkStore проверяет доступность хранилища состояния.
func (h *HealthHandler) checkStore(ctx context.Context) map[string]any {
	if h.store == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Хранилище состояния недоступно: " + err.Error(),
		}
	}
	return map[string]any{
		"status": "ok",
	}
}

// checkExportDir проверяет доступность директории выгрузок на запись.
func (h *HealthHandler) checkExportDir() map[string]any {
	if h.exportDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	if err := os.MkdirAll(h.exportDir, 0o750); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория выгрузок недоступна: " + err.Error(),
		}
	}
	testFile := filepath.Join(h.exportDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория выгрузок недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}

// checkDependencies сводит состояние зависимостей topologymetrics.
// Пока первая проверка не выполнена, карта пуста и статус ok.
func (h *HealthHandler) checkDependencies() map[string]any {
	health := h.deps.Health()
	status := "ok"
	for _, healthy := range health {
		if !healthy {
			status = statusFail
		}
	}
	return map[string]any{
		"status":       status,
		"dependencies": health,
	}
}
