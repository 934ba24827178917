package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trading-bot/internal/auth"
	"adaptive-trading-bot/internal/engine"
	"adaptive-trading-bot/internal/risk"
)

type fakeEngine struct {
	report *engine.Report
}

func (f *fakeEngine) Status() map[string]interface{} {
	return map[string]interface{}{"symbol": "BTCUSDT", "capital": 10000.0}
}

func (f *fakeEngine) SnapshotPositions() []engine.Position {
	return []engine.Position{{Symbol: "BTCUSDT", Side: engine.SideLong, EntryPrice: 100, Quantity: 1}}
}

func (f *fakeEngine) SnapshotTrades() []engine.TradeRecord {
	return []engine.TradeRecord{{Symbol: "BTCUSDT", PnL: 25}}
}

func (f *fakeEngine) LastReport() *engine.Report { return f.report }

func testServer(t *testing.T, eng EngineAPI) *Server {
	t.Helper()

	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	cfg := Config{
		Host:           "127.0.0.1",
		Port:           0,
		AllowedOrigins: []string{"http://localhost:5173"},
		JWTSecret:      "test-secret",
		AdminUser:      "admin",
		AdminHash:      hash,
		TokenDuration:  time.Hour,
	}
	riskMgr := risk.NewManager(risk.Config{
		RiskPercent:     0.02,
		MaxDailyLossPct: 0.05,
		MaxExposurePct:  0.3,
	}, 10000, zerolog.Nop())

	return NewServer(cfg, eng, riskMgr, nil, nil, zerolog.Nop())
}

func login(t *testing.T, s *Server) string {
	t.Helper()

	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "hunter22"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing login response: %v", err)
	}
	return resp.Token
}

func TestHealthIsOpen(t *testing.T) {
	s := testServer(t, &fakeEngine{})

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("health = %d, want 200", w.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := testServer(t, &fakeEngine{})

	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "wrong"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad credentials = %d, want 401", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := testServer(t, &fakeEngine{})

	for _, path := range []string{"/api/status", "/api/positions", "/api/trades", "/api/report", "/api/risk"} {
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token = %d, want 401", path, w.Code)
		}
	}
}

func TestStatusWithToken(t *testing.T) {
	s := testServer(t, &fakeEngine{})
	token := login(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var status map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("parsing status: %v", err)
	}
	if status["symbol"] != "BTCUSDT" {
		t.Errorf("symbol = %v", status["symbol"])
	}
	if _, ok := status["risk"]; !ok {
		t.Error("status must embed the risk snapshot")
	}
}

func TestTradesLimitValidation(t *testing.T) {
	s := testServer(t, &fakeEngine{})
	token := login(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/trades?limit=9999", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("oversized limit = %d, want 400", w.Code)
	}
}

func TestReportBeforeSessionEnds(t *testing.T) {
	s := testServer(t, &fakeEngine{})
	token := login(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/report", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("missing report = %d, want 404", w.Code)
	}
}

func TestReportAfterSessionEnds(t *testing.T) {
	s := testServer(t, &fakeEngine{report: &engine.Report{TotalTrades: 3, TotalPnL: 120}})
	token := login(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/report", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("report = %d, want 200", w.Code)
	}
	var report engine.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("parsing report: %v", err)
	}
	if report.TotalTrades != 3 {
		t.Errorf("total trades = %d, want 3", report.TotalTrades)
	}
}
