// datasets.go — сервис наборов данных: загрузка с проверкой лицензии,
// восстановление при старте, поиск пациента по обоим наборам,
// отметка обработки и выгрузка (с необязательным архивом в S3).
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/carepoint/internal/domain/fault"
	"github.com/bigkaa/carepoint/internal/domain/model"
	"github.com/bigkaa/carepoint/internal/domain/trust"
	"github.com/bigkaa/carepoint/internal/storage/archive"
	"github.com/bigkaa/carepoint/internal/storage/filestore"
	"github.com/bigkaa/carepoint/internal/storage/recordstore"
)

// Prometheus-метрики наборов данных.
var (
	datasetLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cp_dataset_loads_total",
		Help: "Количество загрузок наборов данных по результату.",
	}, []string{"dataset", "result"})

	datasetRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cp_dataset_records",
		Help: "Количество записей в загруженном наборе данных.",
	}, []string{"dataset"})

	statusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cp_status_updates_total",
		Help: "Количество изменений отметки обработки записей.",
	}, []string{"dataset"})

	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cp_exports_total",
		Help: "Количество выгрузок наборов данных по результату.",
	}, []string{"dataset", "result"})
)

// Archiver — получатель файлов выгрузки (S3).
type Archiver interface {
	Put(ctx context.Context, name string, body io.Reader) (*archive.Info, error)
}

// DatasetConfig — параметры сервиса наборов.
type DatasetConfig struct {
	// ExportDir — директория выгрузок (CP_EXPORT_DIR)
	ExportDir string
	// TTLDays — срок годности набора в днях (CP_DATASET_A_TTL_DAYS, CP_DATASET_B_TTL_DAYS)
	TTLDays map[model.DatasetTag]int
	// RequireTokenFilename — имя файла должно совпадать с токеном окна
	RequireTokenFilename bool
}

// LoadResult — итог загрузки набора.
type LoadResult struct {
	Dataset   model.DatasetTag `json:"dataset"`
	Path      string           `json:"path"`
	Records   int              `json:"records"`
	Encoding  string           `json:"encoding"`
	Delimiter string           `json:"delimiter"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// DatasetMatch — найденная запись одного набора.
type DatasetMatch struct {
	Dataset model.DatasetTag `json:"dataset"`
	// Stale — набор просрочен; запись всё равно возвращается
	Stale    bool                   `json:"stale"`
	Record   model.Record           `json:"record"`
	Activity *model.PendingActivity `json:"activity,omitempty"`
}

// LookupResult — результат поиска пациента по обоим наборам.
type LookupResult struct {
	ID            string         `json:"id"`
	State         trust.State    `json:"state"`
	DeviceExpired bool           `json:"device_expired"`
	Warning       string         `json:"warning,omitempty"`
	Matches       []DatasetMatch `json:"matches"`
}

// ExportResult — итог выгрузки.
type ExportResult struct {
	File         *filestore.SaveResult `json:"file"`
	Archive      *archive.Info         `json:"archive,omitempty"`
	ArchiveError string                `json:"archive_error,omitempty"`
}

// DatasetSummary — краткие сведения о наборе.
type DatasetSummary struct {
	Dataset   model.DatasetTag `json:"dataset"`
	Loaded    bool             `json:"loaded"`
	Path      string           `json:"path,omitempty"`
	Records   int              `json:"records"`
	Stale     bool             `json:"stale"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	LoadedOn  string           `json:"loaded_on,omitempty"`
}

// DatasetService управляет наборами A и B.
type DatasetService struct {
	trust    *TrustController
	datasets map[model.DatasetTag]*recordstore.Dataset
	cfg      DatasetConfig
	archive  Archiver
	logger   *slog.Logger
}

// NewDatasetService создаёт сервис. archiver может быть nil: архив выключен.
// opts передаются обоим наборам.
func NewDatasetService(
	trustCtrl *TrustController,
	cfg DatasetConfig,
	archiver Archiver,
	logger *slog.Logger,
	opts ...recordstore.Option,
) *DatasetService {
	datasets := map[model.DatasetTag]*recordstore.Dataset{
		model.DatasetA: recordstore.New(model.DatasetA, recordstore.VariantA{}, opts...),
		model.DatasetB: recordstore.New(model.DatasetB, recordstore.VariantB{}, opts...),
	}

	return &DatasetService{
		trust:    trustCtrl,
		datasets: datasets,
		cfg:      cfg,
		archive:  archiver,
		logger:   logger.With(slog.String("component", "datasets")),
	}
}

// Dataset возвращает дескриптор набора.
func (s *DatasetService) Dataset(tag model.DatasetTag) (*recordstore.Dataset, error) {
	ds, ok := s.datasets[tag]
	if !ok {
		return nil, fault.NotFound("неизвестный набор данных: %q", tag)
	}
	return ds, nil
}

// requireAccess пересчитывает состояние устройства и возвращает
// PRECONDITION_FAILED, если доступ к данным не разрешён.
func (s *DatasetService) requireAccess() (trust.State, error) {
	state := s.trust.Refresh()
	if !trust.GrantsAccess(state) {
		return state, fault.Precondition("устройство не подтверждено (состояние %s)", state)
	}
	return state, nil
}

// Load загружает набор из файла.
//
// Порядок: проверка доступа, проверка имени файла по окну токенов
// (если включена), повторное подтверждение лицензии, разбор файла,
// сохранение пути и срока. Ошибка разбора удаляет сохранённые сведения
// о наборе: после неё набор считается незагруженным.
func (s *DatasetService) Load(ctx context.Context, tag model.DatasetTag, path string) (*LoadResult, error) {
	ds, err := s.Dataset(tag)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireAccess(); err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fault.Precondition("не указан путь к файлу набора")
	}

	result, err := s.load(ctx, ds, path)
	if err != nil {
		datasetLoadsTotal.WithLabelValues(string(tag), "error").Inc()
		s.logger.Warn("Набор данных не загружен",
			slog.String("dataset", string(tag)),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	datasetLoadsTotal.WithLabelValues(string(tag), "ok").Inc()
	datasetRecords.WithLabelValues(string(tag)).Set(float64(result.Records))
	s.logger.Info("Набор данных загружен",
		slog.String("dataset", string(tag)),
		slog.String("path", path),
		slog.Int("records", result.Records),
		slog.Time("expires_at", result.ExpiresAt),
	)
	return result, nil
}

func (s *DatasetService) load(ctx context.Context, ds *recordstore.Dataset, path string) (*LoadResult, error) {
	if s.cfg.RequireTokenFilename {
		ok, err := s.trust.AcceptsFilename(ctx, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fault.Precondition("имя файла %s не совпадает с токеном за последние три дня", path)
		}
	}

	if !s.trust.CheckValidityRemote(ctx) {
		return nil, fault.Remote("лицензия устройства не подтверждена", nil)
	}

	n, err := ds.Load(path)
	if err != nil {
		datasetRecords.WithLabelValues(string(ds.Tag())).Set(0)
		if ferr := s.trust.ForgetDataset(ctx, ds.Tag()); ferr != nil {
			return nil, fmt.Errorf("сброс сведений о наборе %s: %w (после ошибки загрузки: %w)", ds.Tag(), ferr, err)
		}
		return nil, err
	}

	expires, err := s.trust.RecordDatasetLoad(ctx, ds.Tag(), path, s.cfg.TTLDays[ds.Tag()])
	if err != nil {
		return nil, fmt.Errorf("сохранение сведений о наборе %s: %w", ds.Tag(), err)
	}
	ds.SetExpiry(expires)

	return &LoadResult{
		Dataset:   ds.Tag(),
		Path:      path,
		Records:   n,
		Encoding:  string(ds.Encoding()),
		Delimiter: string(ds.Delimiter()),
		ExpiresAt: expires,
	}, nil
}

// Restore загружает наборы из сохранённых путей без обращения к сервису
// лицензий. Ошибка одного набора не мешает восстановлению другого;
// сведения о невосстановленном наборе удаляются.
// Возвращает количество восстановленных наборов.
func (s *DatasetService) Restore() int {
	restored := 0
	for _, tag := range model.AllDatasets() {
		st := s.trust.DatasetState(tag)
		if st.Path == "" {
			continue
		}

		ds := s.datasets[tag]
		n, err := ds.Load(st.Path)
		if err != nil {
			s.logger.Warn("Набор данных не восстановлен",
				slog.String("dataset", string(tag)),
				slog.String("path", st.Path),
				slog.String("error", err.Error()),
			)
			if ferr := s.trust.ForgetDataset(context.Background(), tag); ferr != nil {
				s.logger.Error("Сведения о наборе не сброшены",
					slog.String("dataset", string(tag)),
					slog.String("error", ferr.Error()),
				)
			}
			continue
		}
		if st.ExpiresAt != nil {
			ds.SetExpiry(*st.ExpiresAt)
		}
		datasetRecords.WithLabelValues(string(tag)).Set(float64(n))
		restored++

		s.logger.Info("Набор данных восстановлен",
			slog.String("dataset", string(tag)),
			slog.Int("records", n),
			slog.Bool("stale", s.trust.IsExpired(tag)),
		)
	}
	return restored
}

// Lookup ищет пациента по номеру документа в обоих наборах.
// Устройство без подтверждения получает PRECONDITION_FAILED.
// Просроченные наборы не блокируют чтение: результат помечается как устаревший.
func (s *DatasetService) Lookup(id string) (*LookupResult, error) {
	state, err := s.requireAccess()
	if err != nil {
		return nil, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fault.Precondition("не указан номер документа")
	}

	result := &LookupResult{
		ID:            id,
		State:         state,
		DeviceExpired: s.trust.IsDeviceExpired(),
		Matches:       make([]DatasetMatch, 0, len(s.datasets)),
	}
	if result.DeviceExpired {
		result.Warning = fault.MessageOf(fault.Stale("срок действия данных устройства истёк"))
	}

	for _, tag := range model.AllDatasets() {
		rec, ok := s.datasets[tag].FindByKey(id)
		if !ok {
			continue
		}
		match := DatasetMatch{
			Dataset: tag,
			Stale:   s.trust.IsExpired(tag),
			Record:  rec,
		}
		if tag == model.DatasetB {
			activity := model.PendingActivityFromRecord(rec)
			match.Activity = &activity
		}
		result.Matches = append(result.Matches, match)
	}

	if len(result.Matches) == 0 {
		return nil, fault.NotFound("пациент %s не найден", id)
	}
	return result, nil
}

// MarkHandled меняет отметку обработки записи и сохраняет файл набора.
// Требует подтверждённого устройства, как и Lookup.
func (s *DatasetService) MarkHandled(tag model.DatasetTag, id string, value bool) (*model.Record, error) {
	ds, err := s.Dataset(tag)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireAccess(); err != nil {
		return nil, err
	}
	if !ds.IsLoaded() {
		return nil, fault.Precondition("набор %s не загружен", tag)
	}

	found, err := ds.UpdateStatus(id, value)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fault.NotFound("запись %s не найдена в наборе %s", id, tag)
	}
	statusUpdatesTotal.WithLabelValues(string(tag)).Inc()

	rec, _ := ds.FindByKey(id)
	s.logger.Info("Отметка обработки изменена",
		slog.String("dataset", string(tag)),
		slog.String("id", id),
		slog.Bool("status", value),
	)
	return &rec, nil
}

// Export выгружает набор в CP_EXPORT_DIR и, если настроен архив, отправляет
// файл в S3. Ошибка архива не отменяет локальную выгрузку.
// Требует подтверждённого устройства.
func (s *DatasetService) Export(ctx context.Context, tag model.DatasetTag) (*ExportResult, error) {
	ds, err := s.Dataset(tag)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireAccess(); err != nil {
		return nil, err
	}

	file, err := ds.Export(s.cfg.ExportDir)
	if err != nil {
		exportsTotal.WithLabelValues(string(tag), "error").Inc()
		return nil, err
	}
	exportsTotal.WithLabelValues(string(tag), "ok").Inc()

	result := &ExportResult{File: file}
	s.logger.Info("Набор данных выгружен",
		slog.String("dataset", string(tag)),
		slog.String("file", file.Name),
		slog.Int64("size", file.Size),
	)

	if s.archive == nil {
		return result, nil
	}

	info, err := s.putArchive(ctx, file)
	if err != nil {
		s.logger.Error("Выгрузка не отправлена в архив",
			slog.String("dataset", string(tag)),
			slog.String("file", file.Name),
			slog.String("error", err.Error()),
		)
		result.ArchiveError = err.Error()
		return result, nil
	}
	result.Archive = info
	return result, nil
}

func (s *DatasetService) putArchive(ctx context.Context, file *filestore.SaveResult) (*archive.Info, error) {
	f, err := os.Open(file.FullPath)
	if err != nil {
		return nil, fmt.Errorf("открытие выгрузки %s: %w", file.Name, err)
	}
	defer f.Close()
	return s.archive.Put(ctx, file.Name, f)
}

// Summaries возвращает сведения об обоих наборах.
func (s *DatasetService) Summaries() []DatasetSummary {
	out := make([]DatasetSummary, 0, len(s.datasets))
	for _, tag := range model.AllDatasets() {
		ds := s.datasets[tag]
		st := s.trust.DatasetState(tag)
		out = append(out, DatasetSummary{
			Dataset:   tag,
			Loaded:    ds.IsLoaded(),
			Path:      ds.Path(),
			Records:   ds.Count(),
			Stale:     s.trust.IsExpired(tag),
			ExpiresAt: st.ExpiresAt,
			LoadedOn:  st.LoadedOn,
		})
	}
	return out
}
