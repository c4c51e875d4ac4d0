package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// licenseHealth ищет запись сервиса лицензий в карте Health.
func licenseHealth(t *testing.T, ds *DephealthService) bool {
	t.Helper()
	health := ds.Health()
	for key, val := range health {
		if strings.HasPrefix(key, LicenseDependencyName+":") {
			return val
		}
	}
	t.Fatalf("Нет записи для %s в Health(), keys=%v", LicenseDependencyName, healthKeys(health))
	return false
}

func TestNewDephealthService_ValidURL(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	ds, err := NewDephealthServiceWithRegisterer(
		"test-cp-01", "carepoint", mockServer.URL, 5*time.Second, testLogger(), prometheus.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	if ds == nil {
		t.Fatal("DephealthService nil")
	}
}

func TestDephealthService_Healthy(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	ds, err := NewDephealthServiceWithRegisterer(
		"test-cp-02", "carepoint", mockServer.URL, 1*time.Second, testLogger(), prometheus.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}
	defer ds.Stop()

	// Даём время на первую проверку (интервал 1s + запас)
	time.Sleep(3 * time.Second)

	if !licenseHealth(t, ds) {
		t.Error("сервис лицензий должен быть доступен")
	}
}

func TestDephealthService_UnhealthyDependency(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer mockServer.Close()

	ds, err := NewDephealthServiceWithRegisterer(
		"test-cp-03", "carepoint", mockServer.URL, 1*time.Second, testLogger(), prometheus.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}
	defer ds.Stop()

	time.Sleep(3 * time.Second)

	if licenseHealth(t, ds) {
		t.Error("сервис лицензий должен быть недоступен (сервер 500)")
	}
}

// healthKeys возвращает ключи карты health для вывода в сообщениях об ошибках.
func healthKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
