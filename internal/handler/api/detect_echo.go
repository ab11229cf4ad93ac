package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	models "UniAD/internal/domain/models"
	"UniAD/internal/service/metrics"
	"UniAD/internal/service/ratelimit"
	"UniAD/internal/usecase"
	xhttp "UniAD/pkg/http"
	xlogger "UniAD/pkg/logger"
)

// ServiceInfo is reported by the health endpoint.
type ServiceInfo struct {
	Name    string
	Version string
	Kernel  string
}

// DetectHandler serves one detect endpoint per strategy kind.
type DetectHandler struct {
	logger   *xlogger.Logger
	svc      *usecase.DetectionService
	info     ServiceInfo
	limiter  *ratelimit.Limiter
	endpoint *metrics.Endpoint
}

// NewDetectHandler builds the handler. limiter and endpoint may be nil.
func NewDetectHandler(logger *xlogger.Logger, svc *usecase.DetectionService, info ServiceInfo, limiter *ratelimit.Limiter, endpoint *metrics.Endpoint) *DetectHandler {
	return &DetectHandler{logger: logger, svc: svc, info: info, limiter: limiter, endpoint: endpoint}
}

// Paths of the detect endpoints.
var detectPaths = map[models.StrategyKind]string{
	models.KindPersist:         "/detect-point-anomalies",
	models.KindThreshold:       "/detect-threshold-anomalies",
	models.KindLevelShift:      "/detect-levelshift-anomalies",
	models.KindVolatilityShift: "/detect-volatilityshift-anomalies",
}

func (h *DetectHandler) RegisterRoutes(e *echo.Echo) {
	for kind, path := range detectPaths {
		e.POST(path, h.Detect(kind), h.rateLimit)
	}
	e.GET("/health", h.Health)
}

// Detect returns the endpoint for kind.
func (h *DetectHandler) Detect(kind models.StrategyKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := &models.DetectRequest{}
		if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
			return xhttp.BadRequestResponse(c, verr)
		}

		out, err := h.svc.Detect(c.Request().Context(), usecase.SourceHTTP, kind, *req)
		c.Response().Header().Set(echo.HeaderXRequestID, out.ID)
		if err != nil {
			return xhttp.AppErrorResponse(c, toAppError(err))
		}
		return c.JSON(http.StatusOK, out.Response)
	}
}

func (h *DetectHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"name":    h.info.Name,
		"version": h.info.Version,
		"kernel":  h.info.Kernel,
	})
}

func (h *DetectHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	if h.limiter == nil {
		return next
	}
	return func(c echo.Context) error {
		ip := c.RealIP()
		if h.limiter.Allow(ip) {
			return next(c)
		}
		if h.endpoint != nil {
			h.endpoint.RateLimited.WithLabelValues(c.Path()).Inc()
		}
		retry := int(h.limiter.RetryAfter(ip).Seconds()) + 1
		c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(retry))
		h.logger.Debug("rate limited", xlogger.String("ip", ip), xlogger.String("path", c.Path()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests, retry later").WithParam("retry_after", retry))
	}
}

// toAppError maps detection failures onto transport errors. Internal
// details are not echoed back to the caller.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch code := usecase.ErrorCode(err); code {
	case usecase.CodeInvalidInput:
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case usecase.CodeInsufficientData:
		return xhttp.UnprocessableError(code, err.Error()).WithError(err)
	case usecase.CodeKernelUnavailable:
		return xhttp.BadGatewayError(code, "detection kernel unavailable").WithError(err)
	case usecase.CodeCanceled:
		return xhttp.NewAppError(code, "", "request canceled or timed out", http.StatusServiceUnavailable).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
