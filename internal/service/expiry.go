// expiry.go — фоновая проверка сроков наборов данных.
//
// Watcher периодически пересчитывает состояние доверия к устройству
// (validated ↔ expired меняются только по времени) и публикует метрики
// просроченности наборов и текущего состояния устройства.
//
// Запускается как горутина с периодическим тикером (CP_EXPIRY_CHECK_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/carepoint/internal/domain/model"
	"github.com/bigkaa/carepoint/internal/domain/trust"
)

// Prometheus метрики проверки сроков
var (
	// expiryRunsTotal — количество проверок.
	expiryRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cp_expiry_checks_total",
		Help: "Общее количество проверок сроков наборов данных",
	})

	// datasetExpired — 1, если набор просрочен.
	datasetExpired = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cp_dataset_expired",
		Help: "Просрочен ли набор данных (1 = да)",
	}, []string{"dataset"})

	// deviceState — 1 для текущего состояния устройства, 0 для остальных.
	deviceState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cp_device_state",
		Help: "Текущее состояние доверия к устройству",
	}, []string{"state"})
)

var allStates = []trust.State{
	trust.StateUnregistered,
	trust.StateRegistered,
	trust.StateValidated,
	trust.StateExpired,
}

// ExpiryResult — результат одной проверки.
type ExpiryResult struct {
	// State — состояние устройства после проверки
	State trust.State
	// Changed — состояние изменилось
	Changed bool
	// Expired — просроченные наборы
	Expired []model.DatasetTag
}

// ExpiryWatcher — сервис фоновой проверки сроков.
type ExpiryWatcher struct {
	trust    *TrustController
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExpiryWatcher создаёт сервис проверки сроков.
func NewExpiryWatcher(trustCtrl *TrustController, interval time.Duration, logger *slog.Logger) *ExpiryWatcher {
	return &ExpiryWatcher{
		trust:    trustCtrl,
		interval: interval,
		logger:   logger.With(slog.String("component", "expiry")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
// Вызывается один раз при старте приложения.
func (w *ExpiryWatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(runCtx)

	w.logger.Info("Проверка сроков запущена",
		slog.String("interval", w.interval.String()),
	)
}

// Stop останавливает фоновую проверку и дожидается выхода горутины.
func (w *ExpiryWatcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.logger.Info("Проверка сроков остановлена")
}

func (w *ExpiryWatcher) run(ctx context.Context) {
	defer close(w.done)

	// Первый запуск — сразу после старта
	w.RunOnce()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce выполняет одну проверку. Потокобезопасен.
func (w *ExpiryWatcher) RunOnce() *ExpiryResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.trust.State()
	after := w.trust.Refresh()

	result := &ExpiryResult{
		State:   after,
		Changed: before != after,
	}

	for _, tag := range model.AllDatasets() {
		expired := w.trust.IsExpired(tag)
		value := 0.0
		if expired {
			value = 1
			result.Expired = append(result.Expired, tag)
		}
		datasetExpired.WithLabelValues(string(tag)).Set(value)
	}

	for _, st := range allStates {
		value := 0.0
		if st == after {
			value = 1
		}
		deviceState.WithLabelValues(string(st)).Set(value)
	}
	expiryRunsTotal.Inc()

	if result.Changed {
		w.logger.Info("Состояние устройства изменилось по сроку",
			slog.String("from", string(before)),
			slog.String("to", string(after)),
		)
	}
	w.logger.Debug("Проверка сроков завершена",
		slog.String("state", string(after)),
		slog.Int("expired", len(result.Expired)),
	)

	return result
}
