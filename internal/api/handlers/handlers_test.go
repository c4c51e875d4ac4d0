package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/carepoint/internal/domain/fault"
	"github.com/bigkaa/carepoint/internal/domain/model"
	"github.com/bigkaa/carepoint/internal/domain/trust"
	"github.com/bigkaa/carepoint/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice — управляемая реализация DeviceController.
type fakeDevice struct {
	state       trust.State
	registerErr error
	validateErr error
	lastCode    string
	lastKey     string
}

func (f *fakeDevice) Status() service.DeviceStatus {
	return service.DeviceStatus{State: f.state}
}

func (f *fakeDevice) Register(_ context.Context, code string) (string, error) {
	f.lastCode = code
	if f.registerErr != nil {
		return "", f.registerErr
	}
	f.state = trust.StateRegistered
	return "K1", nil
}

func (f *fakeDevice) Validate(_ context.Context, key string) (*model.ValidationPayload, error) {
	f.lastKey = key
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	f.state = trust.StateValidated
	return &model.ValidationPayload{Valid: true}, nil
}

// fakeDatasets — управляемая реализация DatasetManager.
type fakeDatasets struct {
	loadErr   error
	lookupErr error
	markErr   error
	lastPath  string
	lastTag   model.DatasetTag
	lastID    string
	lastValue bool
}

func (f *fakeDatasets) Summaries() []service.DatasetSummary {
	return []service.DatasetSummary{{Dataset: model.DatasetA}, {Dataset: model.DatasetB}}
}

func (f *fakeDatasets) Load(_ context.Context, tag model.DatasetTag, path string) (*service.LoadResult, error) {
	f.lastTag, f.lastPath = tag, path
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &service.LoadResult{Dataset: tag, Path: path, Records: 2}, nil
}

func (f *fakeDatasets) Export(_ context.Context, tag model.DatasetTag) (*service.ExportResult, error) {
	f.lastTag = tag
	return &service.ExportResult{}, nil
}

func (f *fakeDatasets) MarkHandled(tag model.DatasetTag, id string, value bool) (*model.Record, error) {
	f.lastTag, f.lastID, f.lastValue = tag, id, value
	if f.markErr != nil {
		return nil, f.markErr
	}
	rec := model.NewRecord([]string{"NUMERO_ID", "status"}, []string{id, model.FormatStatus(value)})
	return &rec, nil
}

func (f *fakeDatasets) Lookup(id string) (*service.LookupResult, error) {
	f.lastID = id
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return &service.LookupResult{ID: id, State: trust.StateValidated}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeDeps map[string]bool

func (d fakeDeps) Health() map[string]bool { return d }

type apiEnv struct {
	device   *fakeDevice
	datasets *fakeDatasets
	router   chi.Router
}

func newAPIEnv(t *testing.T, store Pinger, deps DependencyReporter) *apiEnv {
	t.Helper()
	env := &apiEnv{
		device:   &fakeDevice{state: trust.StateUnregistered},
		datasets: &fakeDatasets{},
		router:   chi.NewRouter(),
	}
	api := NewAPIHandler(
		NewDeviceHandler(env.device, testLogger()),
		NewDatasetsHandler(env.datasets, testLogger()),
		NewPatientsHandler(env.datasets),
		NewHealthHandler(store, t.TempDir(), deps),
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "cp_metrics 1\n")
		}),
	)
	api.Mount(env.router)
	return env
}

func (e *apiEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("ошибка декодирования ответа: %v", err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	detail, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("ответ без поля error: %v", body)
	}
	code, _ := detail["code"].(string)
	return code
}

func TestHealthLive(t *testing.T) {
	env := newAPIEnv(t, fakePinger{}, nil)
	rec := env.do(http.MethodGet, "/health/live", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: ожидалось 200, получено %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" || body["service"] != "carepoint" {
		t.Errorf("неожиданное тело: %v", body)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		deps       DependencyReporter
		wantStatus int
		wantState  string
	}{
		{"ok", fakePinger{}, fakeDeps{"license-service": true}, http.StatusOK, "ok"},
		{"сервис лицензий недоступен", fakePinger{}, fakeDeps{"license-service": false}, http.StatusOK, "degraded"},
		{"хранилище недоступно", fakePinger{err: errors.New("database is locked")}, nil, http.StatusServiceUnavailable, statusFail},
		{"без проверки зависимостей", fakePinger{}, nil, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAPIEnv(t, tt.store, tt.deps)
			rec := env.do(http.MethodGet, "/health/ready", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("статус: ожидалось %d, получено %d", tt.wantStatus, rec.Code)
			}
			if body := decodeBody(t, rec); body["status"] != tt.wantState {
				t.Errorf("status: ожидалось %q, получено %v", tt.wantState, body["status"])
			}
		})
	}
}

func TestMetricsMounted(t *testing.T) {
	env := newAPIEnv(t, fakePinger{}, nil)
	rec := env.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cp_metrics") {
		t.Errorf("неожиданный ответ /metrics: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRegisterDevice(t *testing.T) {
	env := newAPIEnv(t, fakePinger{}, nil)

	rec := env.do(http.MethodPost, "/api/v1/device/register", `{"institution_code":" IPS-01 "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: ожидалось 200, получено %d: %s", rec.Code, rec.Body.String())
	}
	if env.device.lastCode != "IPS-01" {
		t.Errorf("код учреждения: ожидалось IPS-01, получено %q", env.device.lastCode)
	}
	body := decodeBody(t, rec)
	if body["key"] != "K1" {
		t.Errorf("key: получено %v", body["key"])
	}
	status, _ := body["status"].(map[string]any)
	if status["state"] != string(trust.StateRegistered) {
		t.Errorf("state: получено %v", status["state"])
	}
}

func TestRegisterDevice_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"некорректный JSON", `{`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"неизвестное поле", `{"code":"X"}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"пустой код", `{"institution_code":"  "}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"сервис недоступен", `{"institution_code":"IPS"}`, fault.Remote("нет подключения к сервису лицензий", nil), http.StatusBadGateway, "REMOTE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAPIEnv(t, fakePinger{}, nil)
			env.device.registerErr = tt.err
			rec := env.do(http.MethodPost, "/api/v1/device/register", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("статус: ожидалось %d, получено %d", tt.wantStatus, rec.Code)
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("код: ожидалось %s, получено %s", tt.wantCode, code)
			}
		})
	}
}

func TestValidateDevice(t *testing.T) {
	env := newAPIEnv(t, fakePinger{}, nil)

	rec := env.do(http.MethodPost, "/api/v1/device/validate", `{"key":"K1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: ожидалось 200, получено %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["state"] != string(trust.StateValidated) {
		t.Errorf("state: получено %v", body["state"])
	}

	env.device.validateErr = fault.Precondition("устройство не зарегистрировано")
	rec = env.do(http.MethodPost, "/api/v1/device/validate", `{"key":"K1"}`)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "PRECONDITION_FAILED" {
		t.Errorf("ожидался 409 PRECONDITION_FAILED, получено %d", rec.Code)
	}
}

func TestGetDevice(t *testing.T) {
	env := newAPIEnv(t, fakePinger{}, nil)
	rec := env.do(http.MethodGet, "/api/v1/device", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: ожидалось 200, получено %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["state"] != string(trust.StateUnregistered) {
		t.Errorf("state: получено %v", body["state"])
	}
}

func TestListDatasets(t *testing.T) {
	env := newAPIEnv(t, fakePinger{}, nil)
	rec := env.do(http.MethodGet, "/api/v1/datasets", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: ожидалось 200, получено %d", rec.Code)
	}
	items, _ := decodeBody(t, rec)["items"].([]any)
	if len(items) != 2 {
		t.Errorf("ожидалось 2 набора, получено %d", len(items))
	}
}

func TestLoadDataset(t *testing.T) {
	env := newAPIEnv(t, fakePinger{}, nil)

	rec := env.do(http.MethodPost, "/api/v1/datasets/b/load", `{"path":"/media/usb/TOK.csv"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: ожидалось 200, получено %d", rec.Code)
	}
	if env.datasets.lastTag != model.DatasetB || env.datasets.lastPath != "/media/usb/TOK.csv" {
		t.Errorf("аргументы: %s %q", env.datasets.lastTag, env.datasets.lastPath)
	}
}

func TestLoadDataset_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"неизвестный набор", "/api/v1/datasets/C/load", `{"path":"/x.csv"}`, nil, http.StatusNotFound, "NOT_FOUND"},
		{"пустой путь", "/api/v1/datasets/A/load", `{"path":""}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"нет заголовка", "/api/v1/datasets/A/load", `{"path":"/x.csv"}`, fault.Format("заголовок не найден"), http.StatusUnprocessableEntity, "FORMAT_ERROR"},
		{"файл не найден", "/api/v1/datasets/A/load", `{"path":"/x.csv"}`, fault.NotFound("файл не найден"), http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAPIEnv(t, fakePinger{}, nil)
			env.datasets.loadErr = tt.err
			rec := env.do(http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("статус: ожидалось %d, получено %d", tt.wantStatus, rec.Code)
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("код: ожидалось %s, получено %s", tt.wantCode, code)
			}
		})
	}
}

func TestExportDataset(t *testing.T) {
	env := newAPIEnv(t, fakePinger{}, nil)
	rec := env.do(http.MethodPost, "/api/v1/datasets/A/export", "")
	if rec.Code != http.StatusCreated {
		t.Errorf("статус: ожидалось 201, получено %d", rec.Code)
	}
	if env.datasets.lastTag != model.DatasetA {
		t.Errorf("набор: получено %s", env.datasets.lastTag)
	}
}

func TestSetRecordStatus(t *testing.T) {
	env := newAPIEnv(t, fakePinger{}, nil)

	rec := env.do(http.MethodPut, "/api/v1/datasets/B/records/789/status", `{"status":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: ожидалось 200, получено %d", rec.Code)
	}
	if env.datasets.lastID != "789" || !env.datasets.lastValue {
		t.Errorf("аргументы: %q %v", env.datasets.lastID, env.datasets.lastValue)
	}
	if body := decodeBody(t, rec); body["status"] != "true" {
		t.Errorf("status: получено %v", body["status"])
	}

	rec = env.do(http.MethodPut, "/api/v1/datasets/B/records/789/status", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("без status: ожидалось 400, получено %d", rec.Code)
	}

	env.datasets.markErr = fault.NotFound("запись не найдена")
	rec = env.do(http.MethodPut, "/api/v1/datasets/B/records/000/status", `{"status":false}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("неизвестная запись: ожидалось 404, получено %d", rec.Code)
	}
}

func TestLookupPatient(t *testing.T) {
	env := newAPIEnv(t, fakePinger{}, nil)

	rec := env.do(http.MethodGet, "/api/v1/patients/123", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: ожидалось 200, получено %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["id"] != "123" {
		t.Errorf("id: получено %v", body["id"])
	}

	env.datasets.lookupErr = fault.Precondition("устройство не подтверждено")
	rec = env.do(http.MethodGet, "/api/v1/patients/123", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("до валидации: ожидалось 409, получено %d", rec.Code)
	}
}
