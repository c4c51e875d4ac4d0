package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, cfg config) *httptest.Server {
	t.Helper()
	srv := &server{
		cfg:     cfg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		devices: make(map[string]*device),
	}
	ts := httptest.NewServer(newMux(srv))
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}
	return resp.StatusCode, out
}

func TestRegisterValidateFlow(t *testing.T) {
	ts := newTestServer(t, config{Secret: "s", Phone: "3001112233"})

	code, reg := postJSON(t, ts.URL+"/api/v1/devices/register",
		`{"institution_code":"IPS01","device_id":"d1","device_name":"Puesto 1"}`)
	if code != http.StatusOK {
		t.Fatalf("регистрация: статус %d", code)
	}
	key, _ := reg["key"].(string)
	if key == "" || reg["device_id"] != "dev-0001" {
		t.Fatalf("неожиданный ответ регистрации: %v", reg)
	}

	code, val := postJSON(t, ts.URL+"/api/v1/devices/validate",
		`{"institution_code":"IPS01","device_id":"d1","key":"`+key+`"}`)
	if code != http.StatusOK || val["valid"] != true || val["phone"] != "3001112233" {
		t.Errorf("валидация: %d %v", code, val)
	}

	code, val = postJSON(t, ts.URL+"/api/v1/devices/validate",
		`{"institution_code":"IPS01","device_id":"d1","key":"WRONG"}`)
	if code != http.StatusOK || val["valid"] != false {
		t.Errorf("неверный ключ: %d %v", code, val)
	}
}

func TestRegister_UnknownInstitution(t *testing.T) {
	ts := newTestServer(t, config{Institutions: map[string]bool{"IPS01": true}})

	code, _ := postJSON(t, ts.URL+"/api/v1/devices/register",
		`{"institution_code":"OTHER","device_id":"d1"}`)
	if code != http.StatusNotFound {
		t.Errorf("ожидался 404, получено %d", code)
	}
}

func TestHash_Deterministic(t *testing.T) {
	ts := newTestServer(t, config{Secret: "s"})

	_, first := postJSON(t, ts.URL+"/api/v1/hash", `{"value":"IPS01-45352"}`)
	_, second := postJSON(t, ts.URL+"/api/v1/hash", `{"value":"IPS01-45352"}`)
	_, other := postJSON(t, ts.URL+"/api/v1/hash", `{"value":"IPS01-45351"}`)

	h, _ := first["hash"].(string)
	if len(h) != 16 || first["hash"] != second["hash"] || first["hash"] == other["hash"] {
		t.Errorf("неожиданные хэши: %v %v %v", first, second, other)
	}
}
