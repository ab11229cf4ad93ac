package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsvc "UniAD/internal/domain/service"
	"UniAD/internal/service/metrics"
	"UniAD/internal/service/ratelimit"
	"UniAD/internal/services/detectors"
	"UniAD/internal/usecase"
	xhttp "UniAD/pkg/http"
	xlogger "UniAD/pkg/logger"
	appmetrics "UniAD/pkg/metrics"
)

const pointBody = `{
	"train_data": {
		"1379980800000": 55620.0, "1379981100000": 55800.0, "1379981400000": 56160.0,
		"1379981700000": 55620.0, "1379982000000": 55530.0, "1379982300000": 55530.0
	},
	"score_data": {
		"1382400000000": 90540.0, "1382400300000": 90720.0, "1382400600000": 89910.0,
		"1382400900000": 87390.0, "1382401200000": 85410.0, "1382401500000": 79650.0
	},
	"parameters": %s
}`

const testFrameLimit = 64 << 10

type testEnv struct {
	echo     *echo.Echo
	endpoint *metrics.Endpoint
}

func newTestEnv(t *testing.T, resolver domsvc.StrategyResolver, limiter *ratelimit.Limiter) testEnv {
	t.Helper()
	reg := prometheus.NewRegistry()
	log := xlogger.Nop()
	svc := usecase.NewDetectionService(
		usecase.NewPipeline(resolver),
		usecase.DetectionServiceConfig{MaxPoints: 1000},
		appmetrics.NewWithRegistry(reg),
		nil, nil, log,
	)
	endpoint := metrics.NewEndpoint(reg)
	handlers := []xhttp.Handler{
		NewDetectHandler(log, svc, ServiceInfo{Name: "uniad", Version: "test", Kernel: "local"}, limiter, endpoint),
		NewWSDetectHandler(log, svc, endpoint, WithWSRateLimit(limiter), WithMaxFrameSize(testFrameLimit)),
	}
	srv := xhttp.NewServer(handlers, xhttp.WithLogger(log), xhttp.WithMetrics("/metrics", reg))
	return testEnv{echo: srv.Echo(), endpoint: endpoint}
}

func (env testEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func decodeAnomalies(t *testing.T, rec *httptest.ResponseRecorder) map[string]bool {
	t.Helper()
	var resp struct {
		AnomalyList map[string]bool `json:"anomaly_list"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.AnomalyList
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Status int `json:"status"`
		Data   []struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.NotEmpty(t, resp.Data)
	assert.Equal(t, rec.Code, resp.Status)
	return resp.Data[0].Code
}

func TestDetectPointAnomalies(t *testing.T) {
	env := newTestEnv(t, detectors.NewLocalRegistry(), nil)

	rec := env.post(t, "/detect-point-anomalies", sprintf(pointBody, `{"c": 3, "window": "15T"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, map[string]bool{
		"1382400000000": false,
		"1382400300000": false,
		"1382400600000": true,
		"1382400900000": true,
		"1382401200000": true,
		"1382401500000": true,
	}, decodeAnomalies(t, rec))
}

func TestDetectPointAnomaliesAggregated(t *testing.T) {
	env := newTestEnv(t, detectors.NewLocalRegistry(), nil)

	rec := env.post(t, "/detect-point-anomalies", sprintf(pointBody, `{"c": 3, "window": "15T", "aggregate_anomalies": "500S", "aggregate_mode": "chained"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"1382400600000"}, trueKeys(decodeAnomalies(t, rec)))

	rec = env.post(t, "/detect-point-anomalies", sprintf(pointBody, `{"c": 3, "window": "15T", "aggregate_anomalies": "500S"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"1382400600000", "1382401200000"}, trueKeys(decodeAnomalies(t, rec)))
}

func TestDetectPointAnomaliesWithoutTraining(t *testing.T) {
	env := newTestEnv(t, detectors.NewLocalRegistry(), nil)

	rec := env.post(t, "/detect-point-anomalies", `{"score_data": {"1000": 1, "2000": 2}, "parameters": {"c": 3, "window": "1S"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_INVALID_INPUT", decodeErrorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "anomaly_list")
}

func TestDetectThresholdAnomalies(t *testing.T) {
	env := newTestEnv(t, detectors.NewLocalRegistry(), nil)

	body := `{
		"score_data": {
			"1609455600": 0.12178372709024772, "1609455660": 0.11050720099031877,
			"1609455720": 0.10551539379110654, "1609455780": 0.12782051546031659,
			"1609455840": 0.10162464965348023, "1609455900": 0.10842426724768395,
			"1609455960": 0.11646994268581218, "1609456020": 0.1069694857691467,
			"1609456080": 0.10106735409516875, "1609456140": 0.10532371366814815
		},
		"parameters": {"high": 0.11050720099031877}
	}`
	rec := env.post(t, "/detect-threshold-anomalies", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeAnomalies(t, rec)
	assert.Len(t, got, 10)
	assert.Equal(t, []string{"1609455600", "1609455780", "1609455960"}, trueKeys(got))
}

func TestDetectLevelShiftTooShort(t *testing.T) {
	env := newTestEnv(t, detectors.NewLocalRegistry(), nil)

	rec := env.post(t, "/detect-levelshift-anomalies", `{"score_data": {"1000": 1, "2000": 2}, "parameters": {"c": 1, "window": "5S"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "ERR_INSUFFICIENT_DATA", decodeErrorCode(t, rec))
}

func TestDetectRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, detectors.NewLocalRegistry(), nil)

	cases := map[string]struct {
		body string
		code string
	}{
		"malformed json":    {`{"score_data": `, "ERR_INVALID_INPUT"},
		"missing series":    {`{"parameters": {}}`, "ERR_REQUIRED"},
		"bad timestamp":     {`{"score_data": {"yesterday": 1}}`, "ERR_INVALID_INPUT"},
		"null value":        {`{"score_data": {"1000": null}}`, "ERR_INVALID_INPUT"},
		"bad window":        {`{"score_data": {"1000": 1}, "parameters": {"window": "soon"}}`, "ERR_INVALID_INPUT"},
		"negative c":        {`{"score_data": {"1000": 1}, "parameters": {"c": -1}}`, "ERR_GTE"},
		"unknown mode":      {`{"score_data": {"1000": 1}, "parameters": {"aggregate_mode": "greedy"}}`, "ERR_ONEOF"},
		"too many points":   {tooManyPoints(1001), "ERR_INVALID_INPUT"},
		"duplicate instant": {`{"score_data": {"1000": 1, "1000.0": 2}}`, "ERR_INVALID_INPUT"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.post(t, "/detect-levelshift-anomalies", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decodeErrorCode(t, rec))
		})
	}
}

func TestDetectRemoteKernelUnavailable(t *testing.T) {
	kernel := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer kernel.Close()
	env := newTestEnv(t, detectors.NewRemoteRegistry(detectors.NewKernelClient(kernel.URL, time.Second, 1)), nil)

	rec := env.post(t, "/detect-levelshift-anomalies", `{"score_data": {"1000": 1, "2000": 2, "3000": 3}, "parameters": {"c": 1, "window": "1S"}}`)
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
	assert.Equal(t, "ERR_KERNEL_UNAVAILABLE", decodeErrorCode(t, rec))
}

func TestDetectRateLimited(t *testing.T) {
	env := newTestEnv(t, detectors.NewLocalRegistry(), ratelimit.New(0.001, 1, time.Minute))
	body := `{"score_data": {"1000": 5}, "parameters": {"high": 1}}`

	require.Equal(t, http.StatusOK, env.post(t, "/detect-threshold-anomalies", body).Code)
	rec := env.post(t, "/detect-threshold-anomalies", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "ERR_RATE_LIMITED", decodeErrorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderRetryAfter))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.endpoint.RateLimited.WithLabelValues("/detect-threshold-anomalies")))
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, detectors.NewLocalRegistry(), nil)

	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","name":"uniad","version":"test","kernel":"local"}`, rec.Body.String())

	env.post(t, "/detect-threshold-anomalies", `{"score_data": {"1000": 5}, "parameters": {"high": 1}}`)
	rec = httptest.NewRecorder()
	env.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `uniad_detections_total{kind="threshold",outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
