package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"growth-core/internal/backtest"
	"growth-core/internal/exchange"
	"growth-core/internal/orchestrator"
	"growth-core/internal/performance"
	"growth-core/internal/risk"
	"growth-core/internal/strategy"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	venue := exchange.NewMock(1000, map[string]float64{"BTC-PERP": 100})
	ctrl, err := orchestrator.New(orchestrator.Config{
		Markets:        []string{"BTC-PERP"},
		InitialCapital: 1000,
	}, orchestrator.Deps{
		Market:   venue,
		Account:  venue,
		Exec:     venue,
		Factory:  strategy.NewFactory(strategy.Deps{Market: venue, Exec: venue}),
		Assessor: risk.NewAssessor(risk.AssessorConfig{}, nil, nil),
		Tracker:  performance.NewTracker(performance.Config{InitialCapital: 1000}, nil),
		Backtest: backtest.NewEngine(backtest.Config{}, nil),
	})
	require.NoError(t, err)

	return NewServer(ctrl, testSecret, nil)
}

func bearer(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func do(s *Server, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusRequiresToken(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/status", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/status", "Bearer garbage").Code)
	require.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/status", bearer(t, "wrong-secret")).Code)
}

func TestStatusWithValidToken(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, http.MethodGet, "/api/status", bearer(t, testSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "idle", body.State)
}

func TestResearchReport(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, http.MethodGet, "/api/report/research", bearer(t, testSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "performance")
}

func TestBacktestReportNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, http.MethodGet, "/api/report/backtest/unknown", bearer(t, testSecret))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
