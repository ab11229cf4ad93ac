package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	models "UniAD/internal/domain/models"
	"UniAD/internal/service/metrics"
	"UniAD/internal/service/ratelimit"
	"UniAD/internal/usecase"
	xlogger "UniAD/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Frame cap when no body limit is configured
	defaultMaxFrameSize = 16 << 20

	wsPath = "/ws/detect"
)

// WSDetectHandler serves detection jobs over a websocket. Each text frame is
// one job and gets exactly one event back, in order. Frames share the HTTP
// rate limiter, keyed by client IP.
type WSDetectHandler struct {
	logger   *xlogger.Logger
	svc      *usecase.DetectionService
	endpoint *metrics.Endpoint
	limiter  *ratelimit.Limiter
	maxFrame int64
	upgrader websocket.Upgrader
}

// WSOption configures WSDetectHandler.
type WSOption func(*WSDetectHandler)

// WithWSRateLimit charges every frame against limiter. Nil disables it.
func WithWSRateLimit(limiter *ratelimit.Limiter) WSOption {
	return func(h *WSDetectHandler) { h.limiter = limiter }
}

// WithMaxFrameSize caps inbound frames; non-positive keeps the default.
func WithMaxFrameSize(n int64) WSOption {
	return func(h *WSDetectHandler) {
		if n > 0 {
			h.maxFrame = n
		}
	}
}

func NewWSDetectHandler(logger *xlogger.Logger, svc *usecase.DetectionService, endpoint *metrics.Endpoint, opts ...WSOption) *WSDetectHandler {
	h := &WSDetectHandler{
		logger:   logger,
		svc:      svc,
		endpoint: endpoint,
		maxFrame: defaultMaxFrameSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *WSDetectHandler) RegisterRoutes(e *echo.Echo) {
	e.GET(wsPath, h.Serve)
}

func (h *WSDetectHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("ws upgrade failed", xlogger.Error(err))
		return nil
	}
	if h.endpoint != nil {
		h.endpoint.WSSessions.Inc()
		defer h.endpoint.WSSessions.Dec()
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	s := &wsSession{conn: conn, ip: c.RealIP()}
	defer conn.Close()

	go s.ping(ctx)
	h.readLoop(ctx, s)
	return nil
}

func (h *WSDetectHandler) readLoop(ctx context.Context, s *wsSession) {
	conn := s.conn
	conn.SetReadLimit(h.maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("ws read failed", xlogger.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.count("in")

		ev := h.handleFrame(ctx, s.ip, frame)
		if err := s.writeJSON(ev); err != nil {
			h.logger.Warn("ws write failed", xlogger.String("id", ev.ID), xlogger.Error(err))
			return
		}
		h.count("out")
	}
}

func (h *WSDetectHandler) handleFrame(ctx context.Context, ip string, frame []byte) models.DetectionEvent {
	var job models.DetectionJob
	if err := json.Unmarshal(frame, &job); err != nil {
		return failedEvent("", usecase.CodeInvalidInput, "malformed job: "+err.Error())
	}
	if h.limiter != nil && !h.limiter.Allow(ip) {
		if h.endpoint != nil {
			h.endpoint.RateLimited.WithLabelValues(wsPath).Inc()
		}
		retry := int(h.limiter.RetryAfter(ip).Seconds()) + 1
		return failedEvent(job.ID, usecase.CodeRateLimited, fmt.Sprintf("too many requests, retry in %ds", retry))
	}
	return h.svc.RunJob(ctx, usecase.SourceWS, job)
}

func failedEvent(id, code, msg string) models.DetectionEvent {
	return models.DetectionEvent{
		ID:         id,
		Error:      &models.EventError{Code: code, Message: msg},
		FinishedAt: time.Now().UTC(),
	}
}

func (h *WSDetectHandler) count(direction string) {
	if h.endpoint != nil {
		h.endpoint.WSFrames.WithLabelValues(direction).Inc()
	}
}

// wsSession serializes writes; gorilla connections allow one writer.
type wsSession struct {
	mu   sync.Mutex
	conn *websocket.Conn
	ip   string
}

func (s *wsSession) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *wsSession) ping(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
