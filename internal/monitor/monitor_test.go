package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/BOREAL/internal/backtest"
	"github.com/copyleftdev/BOREAL/internal/hyperopt"
	"github.com/copyleftdev/BOREAL/internal/logging"
	"github.com/copyleftdev/BOREAL/internal/metrics"
	"github.com/copyleftdev/BOREAL/internal/opt"
	"github.com/copyleftdev/BOREAL/internal/space"
)

type stubStore struct {
	trials hyperopt.Trials
	snaps  []opt.Snapshot
}

func (s *stubStore) LoadTrials() (hyperopt.Trials, error) { return s.trials, nil }

func (s *stubStore) AppendTrials(ts []hyperopt.Trial) error {
	s.trials = append(s.trials, ts...)
	return nil
}

func (s *stubStore) SaveSnapshots(sn []opt.Snapshot) error { s.snaps = sn; return nil }

func (s *stubStore) LoadSnapshots() ([]opt.Snapshot, error) { return s.snaps, nil }

func (s *stubStore) VerifySpace(string) error { return nil }

func testServer(t *testing.T, run bool) *Server {
	t.Helper()
	sp, err := space.New(space.NewInteger("x", 0, 10), space.NewInteger("y", 0, 5))
	require.NoError(t, err)

	eval := func(ctx context.Context, ov backtest.StrategyOverrides) (backtest.Result, error) {
		x := ov.Buy["x"].(int)
		y := ov.Buy["y"].(int)
		return backtest.Result{Metrics: backtest.TradeMetrics{
			TradeCount:  5,
			TotalProfit: float64(x + y),
		}}, nil
	}
	coord, err := hyperopt.New(sp, hyperopt.Config{
		Mode:        hyperopt.ModeSingle,
		Jobs:        2,
		TotalEpochs: 6,
		RandomState: 4,
		Evaluate:    eval,
		Loss:        func(m backtest.TradeMetrics) float64 { return m.TotalProfit },
	}, &stubStore{}, nil, nil)
	require.NoError(t, err)
	if run {
		require.NoError(t, coord.Run(context.Background()))
	}

	logger := logging.New(logging.ErrorLevel, io.Discard)
	return NewServer(coord, metrics.NewSet(), sp.Names(), logger)
}

func TestHealthz(t *testing.T) {
	srv := testServer(t, false)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	srv := testServer(t, true)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status hyperopt.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, hyperopt.ModeSingle, status.Mode)
	assert.Greater(t, status.Epochs, 0)
	assert.True(t, status.HasBest)
}

func TestBestEndpoint(t *testing.T) {
	srv := testServer(t, true)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/best", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "loss")
	assert.Contains(t, body, "params")
}

func TestBestEndpointEmptyRun(t *testing.T) {
	srv := testServer(t, false)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/best", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrialsCSVEndpoint(t *testing.T) {
	srv := testServer(t, true)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/trials.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Greater(t, len(lines), 1, "header plus at least one trial")
	assert.True(t, strings.HasPrefix(lines[0], "epoch,"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, false)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
