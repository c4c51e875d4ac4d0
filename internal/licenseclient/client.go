// Пакет licenseclient — HTTP-клиент сервиса лицензий.
// Регистрирует устройство, проверяет ключ и вычисляет хэш-токены.
//
// Все ошибки возвращаются как *fault.Error вида REMOTE_ERROR. Сообщение
// сервера передаётся дословно, если его удалось разобрать. Повторов нет:
// каждый вызов выполняет ровно один запрос.
package licenseclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bigkaa/carepoint/internal/domain/fault"
	"github.com/bigkaa/carepoint/internal/domain/model"
)

// Общие сообщения для случаев, когда сервер не прислал своего.
const (
	MsgUnreachable = "сервис лицензий недоступен"
	MsgRejected    = "сервис лицензий отклонил запрос"
	MsgNotValid    = "ключ не подтверждён сервисом лицензий"
)

// maxErrorBody — предел чтения тела ответа с ошибкой.
const maxErrorBody = 64 << 10

// RegisterRequest — данные регистрации устройства.
type RegisterRequest struct {
	InstitutionCode string `json:"institution_code"`
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name"`
}

// RegisterResponse — ответ на регистрацию.
type RegisterResponse struct {
	// Key — регистрационный ключ
	Key string `json:"key"`
	// DeviceID — идентификатор устройства на стороне сервиса
	DeviceID string `json:"device_id"`
}

// ValidateRequest — данные проверки ключа.
type ValidateRequest struct {
	InstitutionCode string `json:"institution_code"`
	DeviceID        string `json:"device_id"`
	Key             string `json:"key"`
}

// Client — HTTP-клиент сервиса лицензий.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New создаёт клиент.
// baseURL — базовый URL сервиса (например, https://license.example.org).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут HTTP-запросов (CP_LICENSE_TIMEOUT).
func New(baseURL, caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата сервиса лицензий: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат сервиса лицензий добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With(slog.String("component", "license_client")),
	}, nil
}

// BaseURL возвращает базовый URL сервиса.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping проверяет доступность сервиса: GET /health, любой 2xx считается успехом.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fault.Remote(MsgUnreachable, fmt.Errorf("создание запроса Ping: %w", err))
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fault.Remote(MsgUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fault.Remote(MsgUnreachable, fmt.Errorf("health вернул статус %d", resp.StatusCode))
	}
	return nil
}

// Register регистрирует устройство.
// POST /api/v1/devices/register
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*RegisterResponse, error) {
	body, err := c.post(ctx, "/api/v1/devices/register", in)
	if err != nil {
		return nil, err
	}

	var out RegisterResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fault.Remote(MsgRejected, fmt.Errorf("декодирование ответа регистрации: %w", err))
	}
	if out.Key == "" {
		return nil, fault.Remote(MsgRejected, fmt.Errorf("пустой ключ в ответе регистрации"))
	}

	c.logger.Debug("Устройство зарегистрировано в сервисе лицензий",
		slog.String("institution_code", in.InstitutionCode),
		slog.String("backend_device_id", out.DeviceID),
	)
	return &out, nil
}

// Validate проверяет ключ устройства.
// POST /api/v1/devices/validate
//
// Успех — статус 2xx и valid=true. Ответ с valid=false считается отказом:
// возвращается сообщение из ответа или MsgNotValid.
func (c *Client) Validate(ctx context.Context, in ValidateRequest) (*model.ValidationPayload, error) {
	body, err := c.post(ctx, "/api/v1/devices/validate", in)
	if err != nil {
		return nil, err
	}

	payload, err := model.ParseValidationPayload(body)
	if err != nil {
		return nil, fault.Remote(MsgRejected, err)
	}
	if !payload.Valid {
		msg := payload.Message
		if msg == "" {
			msg = MsgNotValid
		}
		return nil, fault.Remote(msg, nil)
	}
	return payload, nil
}

// Hash вычисляет токен для строки вида "<код>-<номер дня>".
// POST /api/v1/hash
func (c *Client) Hash(ctx context.Context, value string) (string, error) {
	body, err := c.post(ctx, "/api/v1/hash", map[string]string{"value": value})
	if err != nil {
		return "", err
	}

	var out struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fault.Remote(MsgRejected, fmt.Errorf("декодирование ответа hash: %w", err))
	}
	if out.Hash == "" {
		return "", fault.Remote(MsgRejected, fmt.Errorf("пустой hash в ответе"))
	}
	return out.Hash, nil
}

// post отправляет JSON и возвращает тело успешного ответа.
func (c *Client) post(ctx context.Context, path string, in any) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fault.Remote(MsgRejected, fmt.Errorf("кодирование запроса %s: %w", path, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fault.Remote(MsgUnreachable, fmt.Errorf("создание запроса %s: %w", path, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		c.logger.Warn("Сервис лицензий недоступен",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fault.Remote(MsgUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := decodeMessage(raw)
		if msg == "" {
			msg = MsgRejected
		}
		return nil, fault.Remote(msg, fmt.Errorf("%s вернул статус %d", path, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Remote(MsgUnreachable, fmt.Errorf("чтение ответа %s: %w", path, err))
	}
	return body, nil
}

// decodeMessage извлекает сообщение сервера из тела ошибки.
// Поддерживаются {"message": ...}, {"error": {"message": ...}} и {"error": "..."}.
func decodeMessage(raw []byte) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	if len(body.Error) == 0 {
		return ""
	}

	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &nested); err == nil && nested.Message != "" {
		return nested.Message
	}
	var plain string
	if err := json.Unmarshal(body.Error, &plain); err == nil {
		return plain
	}
	return ""
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("в файле %s нет PEM-сертификатов", caCertPath)
	}

	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}, nil
}
