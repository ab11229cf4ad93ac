package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    []struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Params  map[string]interface{} `json:"params"`
	} `json:"data"`
}

func writeError(t *testing.T, err error) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	require.NoError(t, AppErrorResponse(c, err))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestAppErrorResponse(t *testing.T) {
	err := TooManyRequestsError("slow down").WithParam("retry_after", 2).WithError(errors.New("bucket empty"))
	rec, env := writeError(t, err)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusTooManyRequests, env.Status)
	assert.Equal(t, "Too Many Requests", env.Message)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "ERR_RATE_LIMITED", env.Data[0].Code)
	assert.Equal(t, 2.0, env.Data[0].Params["retry_after"])
	assert.NotContains(t, rec.Body.String(), "bucket empty")
}

func TestAppErrorResponseWrapsUnknownErrors(t *testing.T) {
	rec, env := writeError(t, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "ERR_INTERNAL", env.Data[0].Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("kernel refused")
	err := BadGatewayError("ERR_KERNEL_UNAVAILABLE", "kernel unavailable").WithError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.Equal(t, "ERR_KERNEL_UNAVAILABLE: kernel unavailable: kernel refused", err.Error())
	assert.Equal(t, http.StatusInternalServerError, (&AppError{Code: "X"}).HTTPStatus())
}

type sampleRequest struct {
	Series map[string]float64 `json:"score_data" validate:"required"`
	Mode   string             `json:"aggregate_mode" default:"anchored" validate:"oneof=anchored chained"`
	C      float64            `json:"c" validate:"omitempty,gte=0"`
}

func TestValidateStructAppliesDefaults(t *testing.T) {
	req := sampleRequest{Series: map[string]float64{"1000": 1}}
	require.NoError(t, ValidateStruct(context.Background(), &req))
	assert.Equal(t, "anchored", req.Mode)
}

func TestDescribeValidation(t *testing.T) {
	err := ValidateStruct(context.Background(), &sampleRequest{Mode: "greedy", C: -1})
	require.Error(t, err)
	assert.Equal(t,
		"score_data is required; aggregate_mode must be one of: anchored, chained; c must be greater than or equal to 0",
		DescribeValidation(err))
	assert.Equal(t, "plain", DescribeValidation(errors.New("plain")))
}

func TestReadAndValidateRequest(t *testing.T) {
	e := echo.New()
	bind := func(body string) interface{} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return ReadAndValidateRequest(e.NewContext(req, httptest.NewRecorder()), &sampleRequest{})
	}

	assert.Nil(t, bind(`{"score_data": {"1000": 1}}`))

	errs, ok := bind(`{"score_data": {"1000": 1}, "aggregate_mode": "greedy"}`).([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "aggregate_mode", errs[0].Field)
	assert.Equal(t, []string{"anchored", "chained"}, errs[0].Params["options"])

	errs, ok = bind(`{"score_data": `).([]ValidationError)
	require.True(t, ok)
	assert.Equal(t, "ERR_INVALID_INPUT", errs[0].Code)
}
