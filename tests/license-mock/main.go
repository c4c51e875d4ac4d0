// License Mock Server — минималистичный сервис лицензий для тестовой среды.
// Регистрирует устройства, выдаёт и проверяет ключи, считает хэш-токены
// дневного окна (HMAC-SHA256 с секретом из MOCK_SECRET).
package main

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
)

// --- Конфигурация ---

// config хранит конфигурацию сервиса из env-переменных.
type config struct {
	Port         string          // MOCK_PORT — порт HTTP-сервера (default: 8090)
	TLSCert      string          // MOCK_TLS_CERT — путь к TLS сертификату (пусто — HTTP)
	TLSKey       string          // MOCK_TLS_KEY — путь к TLS приватному ключу (пусто — HTTP)
	Secret       string          // MOCK_SECRET — секрет HMAC для /api/v1/hash
	Institutions map[string]bool // MOCK_INSTITUTIONS — допустимые коды через запятую (пусто — любые)
	Phone        string          // MOCK_PHONE — телефон в ответе валидации
}

// loadConfig загружает конфигурацию из переменных окружения.
func loadConfig() config {
	cfg := config{
		Port:    envOrDefault("MOCK_PORT", "8090"),
		TLSCert: os.Getenv("MOCK_TLS_CERT"),
		TLSKey:  os.Getenv("MOCK_TLS_KEY"),
		Secret:  envOrDefault("MOCK_SECRET", "carepoint-test-secret"),
		Phone:   os.Getenv("MOCK_PHONE"),
	}

	if v := os.Getenv("MOCK_INSTITUTIONS"); v != "" {
		cfg.Institutions = make(map[string]bool)
		for _, code := range strings.Split(v, ",") {
			if code = strings.TrimSpace(code); code != "" {
				cfg.Institutions[code] = true
			}
		}
	}

	return cfg
}

// envOrDefault возвращает значение env-переменной или default.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// --- Запросы и ответы ---

// registerRequest — тело POST /api/v1/devices/register.
type registerRequest struct {
	InstitutionCode string `json:"institution_code"`
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name"`
}

// validateRequest — тело POST /api/v1/devices/validate.
type validateRequest struct {
	InstitutionCode string `json:"institution_code"`
	DeviceID        string `json:"device_id"`
	Key             string `json:"key"`
}

// device — зарегистрированное устройство.
type device struct {
	backendID   string
	institution string
	name        string
	key         string
}

// --- Handlers ---

// server объединяет состояние сервиса: конфигурацию и реестр устройств.
type server struct {
	cfg    config
	logger *slog.Logger

	mu      sync.Mutex
	devices map[string]*device // ключ — device_id
	seq     int
}

// handleRegister обрабатывает POST /api/v1/devices/register.
// Повторная регистрация устройства выдаёт новый ключ.
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Невалидный JSON: "+err.Error())
		return
	}
	if req.InstitutionCode == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "Поля 'institution_code' и 'device_id' обязательны")
		return
	}
	if s.cfg.Institutions != nil && !s.cfg.Institutions[req.InstitutionCode] {
		writeError(w, http.StatusNotFound, "Учреждение не найдено")
		return
	}

	key, err := randomKey()
	if err != nil {
		s.logger.Error("Ошибка генерации ключа", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Ошибка генерации ключа")
		return
	}

	s.mu.Lock()
	s.seq++
	dev := &device{
		backendID:   fmt.Sprintf("dev-%04d", s.seq),
		institution: req.InstitutionCode,
		name:        req.DeviceName,
		key:         key,
	}
	s.devices[req.DeviceID] = dev
	s.mu.Unlock()

	s.logger.Info("Устройство зарегистрировано",
		slog.String("institution_code", req.InstitutionCode),
		slog.String("device_id", req.DeviceID),
		slog.String("backend_id", dev.backendID),
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"key":       key,
		"device_id": dev.backendID,
	})
}

// handleValidate обрабатывает POST /api/v1/devices/validate.
// Неверный ключ даёт 200 с valid=false и сообщением.
func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Невалидный JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	dev, ok := s.devices[req.DeviceID]
	s.mu.Unlock()

	if !ok || dev.institution != req.InstitutionCode {
		writeError(w, http.StatusNotFound, "Устройство не зарегистрировано")
		return
	}
	if !hmac.Equal([]byte(dev.key), []byte(req.Key)) {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":   false,
			"message": "Ключ не совпадает с выданным при регистрации",
		})
		return
	}

	resp := map[string]any{
		"password": req.Key,
		"valid":    true,
		"institution": map[string]string{
			"code": dev.institution,
			"name": "Institución " + dev.institution,
		},
	}
	if s.cfg.Phone != "" {
		resp["phone"] = s.cfg.Phone
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHash обрабатывает POST /api/v1/hash — HMAC-SHA256 строки в hex.
func (s *server) handleHash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Невалидный JSON: "+err.Error())
		return
	}
	if req.Value == "" {
		writeError(w, http.StatusBadRequest, "Поле 'value' обязательно")
		return
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	mac.Write([]byte(req.Value))
	writeJSON(w, http.StatusOK, map[string]string{
		"hash": hex.EncodeToString(mac.Sum(nil))[:16],
	})
}

// handleHealth обрабатывает GET /health — проверка готовности сервиса.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// randomKey генерирует ключ устройства: 16 случайных байт в hex.
func randomKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// writeJSON отправляет JSON-ответ.
func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError отправляет JSON-ошибку клиенту.
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// newMux собирает маршруты сервиса.
func newMux(srv *server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/api/v1/devices/register", srv.handleRegister)
	mux.HandleFunc("/api/v1/devices/validate", srv.handleValidate)
	mux.HandleFunc("/api/v1/hash", srv.handleHash)
	return mux
}

// --- Main ---

func main() {
	cfg := loadConfig()

	// Настройка логгера (JSON)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	srv := &server{
		cfg:     cfg,
		logger:  logger,
		devices: make(map[string]*device),
	}
	mux := newMux(srv)
	addr := ":" + cfg.Port

	// Запуск: TLS или HTTP
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		logger.Info("Запуск License Mock Server (HTTPS)",
			slog.String("addr", addr),
			slog.String("tls_cert", cfg.TLSCert),
		)
		if err := http.ListenAndServeTLS(addr, cfg.TLSCert, cfg.TLSKey, mux); err != nil {
			logger.Error("Ошибка сервера", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		logger.Info("Запуск License Mock Server (HTTP)", slog.String("addr", addr))
		fmt.Fprintf(os.Stderr, "ВНИМАНИЕ: TLS не настроен, работаем по HTTP\n")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Ошибка сервера", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}
