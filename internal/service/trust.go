// trust.go — контроллер доверия к устройству.
//
// Владеет идентичностью устройства, регистрацией и валидацией ключа
// в сервисе лицензий, скользящим окном токенов и сроками наборов данных.
// Состояние устройства хранится в statestore и загружается при старте.
package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/carepoint/internal/domain/fault"
	"github.com/bigkaa/carepoint/internal/domain/licenseclock"
	"github.com/bigkaa/carepoint/internal/domain/model"
	"github.com/bigkaa/carepoint/internal/domain/trust"
	"github.com/bigkaa/carepoint/internal/licenseclient"
	"github.com/bigkaa/carepoint/internal/storage/statestore"
)

// LoadedOnLayout — формат даты последней загрузки набора.
const LoadedOnLayout = "02/01/2006 15:04"

// Сообщения локальных и сетевых отказов.
const (
	msgNoConnectivity = "нет подключения к сервису лицензий"
	msgNotRegistered  = "устройство не зарегистрировано"
)

var remoteCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cp_remote_calls_total",
	Help: "Количество вызовов сервиса лицензий по операциям и результату.",
}, []string{"operation", "result"})

// RemoteService — операции сервиса лицензий, нужные контроллеру.
type RemoteService interface {
	Ping(ctx context.Context) error
	Register(ctx context.Context, in licenseclient.RegisterRequest) (*licenseclient.RegisterResponse, error)
	Validate(ctx context.Context, in licenseclient.ValidateRequest) (*model.ValidationPayload, error)
	Hash(ctx context.Context, value string) (string, error)
}

// DeviceInfo — источник платформенного идентификатора и имени устройства.
type DeviceInfo interface {
	DeviceID(ctx context.Context) (string, error)
	DisplayName() string
}

// DeviceStatus — снимок состояния устройства для внешнего API.
type DeviceStatus struct {
	State         trust.State          `json:"state"`
	Identity      model.DeviceIdentity `json:"identity"`
	Institution   string               `json:"institution,omitempty"`
	DeviceExpired bool                 `json:"device_expired"`
	Datasets      []model.DatasetState `json:"datasets"`
}

// TrustOption — опция контроллера.
type TrustOption func(*TrustController)

// WithTrustClock подменяет источник текущего времени.
func WithTrustClock(now func() time.Time) TrustOption {
	return func(c *TrustController) {
		c.now = now
	}
}

// TrustController — контроллер доверия к устройству.
type TrustController struct {
	remote RemoteService
	device DeviceInfo
	store  statestore.Store
	cache  *TokenCache
	now    func() time.Time
	logger *slog.Logger

	// opMu упорядочивает изменяющие операции (регистрация, валидация, загрузка).
	opMu sync.Mutex

	mu       sync.RWMutex
	identity model.DeviceIdentity
	datasets map[model.DatasetTag]model.DatasetState
	sm       *trust.StateMachine
}

// NewTrustController создаёт контроллер и загружает сохранённое состояние.
func NewTrustController(
	ctx context.Context,
	remote RemoteService,
	device DeviceInfo,
	store statestore.Store,
	cache *TokenCache,
	logger *slog.Logger,
	opts ...TrustOption,
) (*TrustController, error) {
	c := &TrustController{
		remote:   remote,
		device:   device,
		store:    store,
		cache:    cache,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "trust")),
		datasets: make(map[model.DatasetTag]model.DatasetState),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.reload(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	initial := c.deriveLocked()
	c.mu.RUnlock()

	sm, err := trust.NewStateMachine(initial)
	if err != nil {
		return nil, err
	}
	c.sm = sm

	c.logger.Info("Состояние устройства загружено",
		slog.String("state", string(initial)),
		slog.String("institution_code", c.identity.InstitutionCode),
	)
	return c, nil
}

// reload читает идентичность и сведения о наборах из хранилища.
func (c *TrustController) reload(ctx context.Context) error {
	get := func(key string) (string, error) {
		return statestore.GetString(ctx, c.store, key)
	}

	var (
		id  model.DeviceIdentity
		err error
	)
	if id.InstitutionCode, err = get(statestore.KeyInstitutionCode); err != nil {
		return err
	}
	if id.DeviceID, err = get(statestore.KeyDeviceID); err != nil {
		return err
	}
	if id.BackendDeviceID, err = get(statestore.KeyBackendDeviceID); err != nil {
		return err
	}
	if id.RegistrationKey, err = get(statestore.KeyRegistrationKey); err != nil {
		return err
	}
	if id.LastKey, err = get(statestore.KeyLastKey); err != nil {
		return err
	}
	if id.Phone, err = get(statestore.KeyPhone); err != nil {
		return err
	}

	raw, err := get(statestore.KeyValidationPayload)
	if err != nil {
		return err
	}
	if raw != "" {
		payload, perr := model.ParseValidationPayload([]byte(raw))
		if perr != nil {
			c.logger.Warn("Сохранённый ответ валидации не разобран",
				slog.String("error", perr.Error()),
			)
		} else {
			id.Payload = payload
		}
	}

	datasets := make(map[model.DatasetTag]model.DatasetState, 2)
	for _, tag := range model.AllDatasets() {
		st := model.DatasetState{Tag: tag}
		if st.Path, err = get(statestore.DatasetKey(tag, statestore.FieldPath)); err != nil {
			return err
		}
		if st.LoadedOn, err = get(statestore.DatasetKey(tag, statestore.FieldLoadedOn)); err != nil {
			return err
		}
		exp, gerr := get(statestore.DatasetKey(tag, statestore.FieldExpiresAt))
		if gerr != nil {
			return gerr
		}
		if exp != "" {
			t, perr := time.Parse(time.RFC3339, exp)
			if perr != nil {
				c.logger.Warn("Некорректный срок набора данных",
					slog.String("dataset", string(tag)),
					slog.String("value", exp),
				)
			} else {
				st.ExpiresAt = &t
			}
		}
		datasets[tag] = st
	}

	c.mu.Lock()
	c.identity = id
	c.datasets = datasets
	c.mu.Unlock()
	return nil
}

// Register регистрирует устройство под кодом учреждения и возвращает
// выданный ключ. Сначала проверяется доступность сервиса, повторов нет.
// При отказе состояние не меняется.
func (c *TrustController) Register(ctx context.Context, institutionCode string) (string, error) {
	code := strings.TrimSpace(institutionCode)
	if code == "" {
		return "", fault.Precondition("не указан код учреждения")
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.remote.Ping(ctx); err != nil {
		observeRemote("ping", err)
		return "", fault.Remote(msgNoConnectivity, err)
	}
	observeRemote("ping", nil)

	deviceID, err := c.device.DeviceID(ctx)
	if err != nil {
		return "", fault.Wrap(fault.KindPrecondition, "не удалось определить идентификатор устройства", err)
	}

	resp, err := c.remote.Register(ctx, licenseclient.RegisterRequest{
		InstitutionCode: code,
		DeviceID:        deviceID,
		DeviceName:      c.device.DisplayName(),
	})
	observeRemote("register", err)
	if err != nil {
		c.logger.Warn("Регистрация отклонена",
			slog.String("institution_code", code),
			slog.String("error", err.Error()),
		)
		return "", asRemote(err)
	}

	// Ответ прежней валидации относится к старой регистрации.
	err = c.store.Replace(ctx,
		map[string]string{
			statestore.KeyInstitutionCode: code,
			statestore.KeyDeviceID:        deviceID,
			statestore.KeyBackendDeviceID: resp.DeviceID,
			statestore.KeyRegistrationKey: resp.Key,
		},
		[]string{
			statestore.KeyValidationPayload,
			statestore.KeyLastKey,
			statestore.KeyPhone,
		},
	)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.identity = model.DeviceIdentity{
		InstitutionCode: code,
		DeviceID:        deviceID,
		BackendDeviceID: resp.DeviceID,
		RegistrationKey: resp.Key,
	}
	c.mu.Unlock()
	c.cache.Purge()

	if err := c.sm.TransitionTo(trust.StateRegistered, trust.TriggerRegister); err != nil {
		return "", err
	}

	c.logger.Info("Устройство зарегистрировано",
		slog.String("institution_code", code),
		slog.String("device_id", deviceID),
		slog.String("backend_device_id", resp.DeviceID),
	)
	return resp.Key, nil
}

// Validate подтверждает ключ в сервисе лицензий. Требует предварительной
// регистрации. Полный ответ сохраняется дословно.
func (c *TrustController) Validate(ctx context.Context, key string) (*model.ValidationPayload, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fault.Precondition("не указан ключ")
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	id := c.identity
	c.mu.RUnlock()
	if !id.IsRegistered() {
		return nil, fault.Precondition(msgNotRegistered)
	}

	payload, err := c.remote.Validate(ctx, licenseclient.ValidateRequest{
		InstitutionCode: id.InstitutionCode,
		DeviceID:        id.DeviceID,
		Key:             key,
	})
	observeRemote("validate", err)
	if err != nil {
		c.logger.Warn("Ключ не подтверждён",
			slog.String("institution_code", id.InstitutionCode),
			slog.String("error", err.Error()),
		)
		return nil, asRemote(err)
	}

	values := map[string]string{
		statestore.KeyValidationPayload: string(payload.Raw),
		statestore.KeyLastKey:           key,
	}
	if payload.Phone != "" {
		values[statestore.KeyPhone] = payload.Phone
	}
	if err := c.store.SetMany(ctx, values); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.identity.Payload = payload
	c.identity.LastKey = key
	if payload.Phone != "" {
		c.identity.Phone = payload.Phone
	}
	c.mu.Unlock()

	if err := c.sm.TransitionTo(trust.StateValidated, trust.TriggerValidate); err != nil {
		return nil, err
	}
	c.Refresh()

	c.logger.Info("Устройство подтверждено",
		slog.String("institution_code", id.InstitutionCode),
		slog.String("institution", payload.InstitutionName()),
	)
	return payload, nil
}

// CheckValidityRemote повторно подтверждает сохранённый ключ через
// эндпоинт валидации (хэш-эндпоинт служит только окну токенов).
// Недоступность сервиса или отказ дают false. Состояние не меняется.
func (c *TrustController) CheckValidityRemote(ctx context.Context) bool {
	c.mu.RLock()
	id := c.identity
	c.mu.RUnlock()

	if !id.IsRegistered() || id.LastKey == "" {
		return false
	}

	payload, err := c.remote.Validate(ctx, licenseclient.ValidateRequest{
		InstitutionCode: id.InstitutionCode,
		DeviceID:        id.DeviceID,
		Key:             id.LastKey,
	})
	observeRemote("revalidate", err)
	if err != nil {
		c.logger.Warn("Повторная проверка ключа не пройдена",
			slog.String("error", err.Error()),
		)
		return false
	}
	return payload.Valid
}

// RollingTokenWindow вычисляет токены для сегодня, вчера и позавчера.
func (c *TrustController) RollingTokenWindow(ctx context.Context, institutionCode string) ([3]string, error) {
	var tokens [3]string
	code := strings.TrimSpace(institutionCode)
	if code == "" {
		return tokens, fault.Precondition("не указан код учреждения")
	}

	for i, day := range licenseclock.Window(c.now()) {
		input := licenseclock.TokenInput(code, day)
		if token, ok := c.cache.Get(input); ok {
			tokens[i] = token
			continue
		}

		token, err := c.remote.Hash(ctx, input)
		observeRemote("hash", err)
		if err != nil {
			return [3]string{}, asRemote(err)
		}
		c.cache.Set(input, token)
		tokens[i] = token
	}
	return tokens, nil
}

// AcceptsFilename проверяет, что имя файла без расширения совпадает
// с одним из токенов окна (без учёта регистра).
func (c *TrustController) AcceptsFilename(ctx context.Context, name string) (bool, error) {
	c.mu.RLock()
	code := c.identity.InstitutionCode
	c.mu.RUnlock()
	if code == "" {
		return false, fault.Precondition(msgNotRegistered)
	}

	tokens, err := c.RollingTokenWindow(ctx, code)
	if err != nil {
		return false, err
	}

	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for _, token := range tokens {
		if strings.EqualFold(stem, token) {
			return true, nil
		}
	}
	return false, nil
}

// DatasetExpiry возвращает срок годности набора, загруженного сейчас.
func (c *TrustController) DatasetExpiry(ttlDays int) time.Time {
	return licenseclock.AddDays(c.now(), ttlDays)
}

// RecordDatasetLoad сохраняет путь, срок годности и дату загрузки набора.
func (c *TrustController) RecordDatasetLoad(
	ctx context.Context,
	tag model.DatasetTag,
	path string,
	ttlDays int,
) (time.Time, error) {
	now := c.now()
	expires := licenseclock.AddDays(now, ttlDays)
	loadedOn := now.Format(LoadedOnLayout)

	if err := c.store.SetMany(ctx, map[string]string{
		statestore.DatasetKey(tag, statestore.FieldPath):      path,
		statestore.DatasetKey(tag, statestore.FieldExpiresAt): expires.Format(time.RFC3339),
		statestore.DatasetKey(tag, statestore.FieldLoadedOn):  loadedOn,
	}); err != nil {
		return time.Time{}, err
	}

	c.mu.Lock()
	c.datasets[tag] = model.DatasetState{
		Tag:       tag,
		Path:      path,
		ExpiresAt: &expires,
		LoadedOn:  loadedOn,
	}
	c.mu.Unlock()

	c.Refresh()
	return expires, nil
}

// ForgetDataset удаляет сохранённые путь, срок и дату загрузки набора.
// Вызывается, когда набор не удалось загрузить.
func (c *TrustController) ForgetDataset(ctx context.Context, tag model.DatasetTag) error {
	if err := c.store.Delete(ctx,
		statestore.DatasetKey(tag, statestore.FieldPath),
		statestore.DatasetKey(tag, statestore.FieldExpiresAt),
		statestore.DatasetKey(tag, statestore.FieldLoadedOn),
	); err != nil {
		return err
	}

	c.mu.Lock()
	c.datasets[tag] = model.DatasetState{Tag: tag}
	c.mu.Unlock()

	c.Refresh()
	return nil
}

// DatasetState возвращает сохранённые сведения о наборе.
func (c *TrustController) DatasetState(tag model.DatasetTag) model.DatasetState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.datasets[tag]
	if !ok {
		return model.DatasetState{Tag: tag}
	}
	return st
}

// IsExpired сообщает, что набор просрочен. Незагруженный набор просрочен.
func (c *TrustController) IsExpired(tag model.DatasetTag) bool {
	return c.DatasetState(tag).IsExpired(c.now())
}

// IsDeviceExpired сообщает, что просрочены оба набора.
func (c *TrustController) IsDeviceExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceExpiredLocked(c.now())
}

func (c *TrustController) deviceExpiredLocked(now time.Time) bool {
	for _, tag := range model.AllDatasets() {
		if !c.datasets[tag].IsExpired(now) {
			return false
		}
	}
	return true
}

// anyLoadedLocked сообщает, что хотя бы один набор загружался.
func (c *TrustController) anyLoadedLocked() bool {
	for _, tag := range model.AllDatasets() {
		if c.datasets[tag].ExpiresAt != nil {
			return true
		}
	}
	return false
}

// deriveLocked вычисляет состояние по сохранённым данным.
// Expired наступает только по времени: нужен хотя бы один загруженный набор.
func (c *TrustController) deriveLocked() trust.State {
	switch {
	case !c.identity.IsRegistered():
		return trust.StateUnregistered
	case !c.identity.IsValidated():
		return trust.StateRegistered
	case c.anyLoadedLocked() && c.deviceExpiredLocked(c.now()):
		return trust.StateExpired
	default:
		return trust.StateValidated
	}
}

// Refresh пересчитывает состояние по времени и возвращает актуальное.
func (c *TrustController) Refresh() trust.State {
	c.mu.RLock()
	target := c.deriveLocked()
	c.mu.RUnlock()

	current := c.sm.Current()
	if target == current {
		return current
	}

	if err := c.sm.TransitionTo(target, trust.TriggerClock); err != nil {
		var te *trust.TransitionError
		if errors.As(err, &te) {
			c.logger.Warn("Состояние восстановлено из хранилища",
				slog.String("from", string(current)),
				slog.String("to", string(target)),
				slog.String("reason", te.Code),
			)
		}
		c.sm.Restore(target)
	} else {
		c.logger.Info("Состояние устройства изменилось",
			slog.String("from", string(current)),
			slog.String("to", string(target)),
		)
	}
	return target
}

// State возвращает текущее состояние.
func (c *TrustController) State() trust.State {
	return c.sm.Current()
}

// History возвращает историю переходов.
func (c *TrustController) History() []trust.TransitionRecord {
	return c.sm.History()
}

// Identity возвращает копию идентичности устройства.
func (c *TrustController) Identity() model.DeviceIdentity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Status возвращает снимок состояния.
func (c *TrustController) Status() DeviceStatus {
	state := c.Refresh()

	c.mu.RLock()
	defer c.mu.RUnlock()

	datasets := make([]model.DatasetState, 0, len(c.datasets))
	for _, tag := range model.AllDatasets() {
		st, ok := c.datasets[tag]
		if !ok {
			st = model.DatasetState{Tag: tag}
		}
		datasets = append(datasets, st)
	}

	return DeviceStatus{
		State:         state,
		Identity:      c.identity,
		Institution:   c.identity.Payload.InstitutionName(),
		DeviceExpired: c.deviceExpiredLocked(c.now()),
		Datasets:      datasets,
	}
}

// asRemote приводит ошибку удалённого вызова к REMOTE_ERROR.
func asRemote(err error) error {
	if fault.KindOf(err) == fault.KindRemote {
		return err
	}
	return fault.Remote(licenseclient.MsgUnreachable, err)
}

func observeRemote(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	remoteCallsTotal.WithLabelValues(operation, result).Inc()
}
