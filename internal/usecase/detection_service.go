package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"UniAD/internal/domain/models"
	domrepo "UniAD/internal/domain/repository"
	xhttp "UniAD/pkg/http"
	"UniAD/pkg/logger"
	"UniAD/pkg/util"
)

// Sources of detection requests, recorded on audit rows.
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
	SourceWS    = "ws"
	SourceCLI   = "cli"
)

// DetectionServiceConfig tunes request handling.
type DetectionServiceConfig struct {
	Defaults  models.ParamDefaults
	MaxPoints int           // 0 disables the limit
	Timeout   time.Duration // 0 disables the deadline
}

// DetectionService turns wire-level requests into pipeline runs and records
// their outcome. Audit store and cache are optional.
type DetectionService struct {
	pipeline *Pipeline
	cfg      DetectionServiceConfig
	metrics  domrepo.Metrics
	audit    domrepo.AuditStore
	cache    domrepo.ResultCache
	log      *logger.Logger
}

func NewDetectionService(pipeline *Pipeline, cfg DetectionServiceConfig, metrics domrepo.Metrics, audit domrepo.AuditStore, cache domrepo.ResultCache, log *logger.Logger) *DetectionService {
	if cfg.Defaults == nil {
		cfg.Defaults = models.DefaultParams()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DetectionService{pipeline: pipeline, cfg: cfg, metrics: metrics, audit: audit, cache: cache, log: log}
}

// DetectOutcome is a served request.
type DetectOutcome struct {
	ID       string
	Response models.DetectResponse
	Raw      int
	Kept     int
	Cached   bool
}

// Detect serves one request for kind.
func (s *DetectionService) Detect(ctx context.Context, source string, kind models.StrategyKind, req models.DetectRequest) (DetectOutcome, error) {
	return s.detect(ctx, uuid.NewString(), source, kind, req)
}

func (s *DetectionService) detect(ctx context.Context, id, source string, kind models.StrategyKind, req models.DetectRequest) (DetectOutcome, error) {
	start := time.Now()
	out := DetectOutcome{ID: id}
	run := models.DetectionRun{
		ID:       id,
		Source:   source,
		Kind:     kind,
		Points:   len(req.ScoreData),
		Training: len(req.TrainData),
	}
	if w, err := util.ParseWindow(req.Parameters.AggregateAnomalies); err == nil {
		run.Aggregation = w
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	key := s.cacheKey(kind, req)
	if cached, ok := s.lookup(ctx, key); ok {
		out.Response = cached.Response
		out.Raw, out.Kept, out.Cached = cached.Raw, cached.Kept, true
		s.finish(ctx, &run, out, nil, start)
		return out, nil
	}

	res, err := s.run(ctx, kind, req)
	if err != nil {
		s.finish(ctx, &run, out, err, start)
		return out, err
	}
	out.Response = models.DetectResponse{AnomalyList: models.EncodeFlags(res.Flags)}
	out.Raw, out.Kept = res.Raw, res.Kept()
	s.store(ctx, key, out)
	s.finish(ctx, &run, out, nil, start)
	return out, nil
}

func (s *DetectionService) run(ctx context.Context, kind models.StrategyKind, req models.DetectRequest) (models.DetectionResult, error) {
	if n := len(req.ScoreData) + len(req.TrainData); s.cfg.MaxPoints > 0 && n > s.cfg.MaxPoints {
		return models.DetectionResult{}, fmt.Errorf("%w: %d points exceed the limit of %d", models.ErrInvalidInput, n, s.cfg.MaxPoints)
	}
	in, err := req.ToInput(kind, s.cfg.Defaults)
	if err != nil {
		return models.DetectionResult{}, err
	}
	return s.pipeline.Run(ctx, in)
}

// RunJob serves a queued job and always answers with an event; failures are
// carried inside it.
func (s *DetectionService) RunJob(ctx context.Context, source string, job models.DetectionJob) models.DetectionEvent {
	start := time.Now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	ev := models.DetectionEvent{ID: job.ID, Kind: job.Kind}

	var (
		out DetectOutcome
		err error
	)
	if verr := xhttp.ValidateStruct(ctx, &job); verr != nil {
		err = fmt.Errorf("%w: %s", models.ErrInvalidInput, xhttp.DescribeValidation(verr))
		s.metrics.RecordError("job_validation")
	} else {
		var kind models.StrategyKind
		kind, err = models.ParseStrategyKind(job.Kind)
		if err == nil {
			out, err = s.detect(ctx, job.ID, source, kind, job.DetectRequest)
		}
	}

	ev.FinishedAt = time.Now().UTC()
	ev.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		ev.Error = &models.EventError{Code: ErrorCode(err), Message: err.Error()}
		return ev
	}
	ev.AnomalyList = out.Response.AnomalyList
	ev.Flagged, ev.Kept = out.Raw, out.Kept
	return ev
}

type cachedOutcome struct {
	Response models.DetectResponse `json:"response"`
	Raw      int                   `json:"raw"`
	Kept     int                   `json:"kept"`
}

func (s *DetectionService) cacheKey(kind models.StrategyKind, req models.DetectRequest) string {
	if s.cache == nil {
		return ""
	}
	b, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(b)
	return "detect:" + hex.EncodeToString(h.Sum(nil))
}

func (s *DetectionService) lookup(ctx context.Context, key string) (cachedOutcome, bool) {
	if s.cache == nil || key == "" {
		return cachedOutcome{}, false
	}
	b, ok := s.cache.Get(ctx, key)
	if !ok {
		return cachedOutcome{}, false
	}
	var c cachedOutcome
	if err := json.Unmarshal(b, &c); err != nil {
		s.log.Warn("detection cache: discard undecodable entry", logger.String("key", key), logger.Error(err))
		return cachedOutcome{}, false
	}
	return c, true
}

func (s *DetectionService) store(ctx context.Context, key string, out DetectOutcome) {
	if s.cache == nil || key == "" {
		return
	}
	b, err := json.Marshal(cachedOutcome{Response: out.Response, Raw: out.Raw, Kept: out.Kept})
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, b)
}

func (s *DetectionService) finish(ctx context.Context, run *models.DetectionRun, out DetectOutcome, err error, start time.Time) {
	run.Duration = time.Since(start)
	run.FinishedAt = time.Now().UTC()
	run.Raw, run.Kept = out.Raw, out.Kept
	run.ErrorCode = ErrorCode(err)

	kind := string(run.Kind)
	s.metrics.RecordDetection(kind, outcome(err), run.Duration.Seconds())
	if err == nil {
		s.metrics.RecordFlags(kind, out.Raw, out.Kept)
	}

	fields := []logger.Field{
		logger.String("id", run.ID),
		logger.String("source", run.Source),
		logger.String("kind", kind),
		logger.Int("points", run.Points),
		logger.Duration("duration_ms", run.Duration),
	}
	switch ErrorCode(err) {
	case "":
		s.log.Debug("detection served", append(fields, logger.Int("raw", out.Raw), logger.Int("kept", out.Kept), logger.Bool("cached", out.Cached))...)
	case CodeInternal, CodeKernelUnavailable:
		s.log.Error("detection failed", append(fields, logger.Error(err))...)
	default:
		s.log.Info("detection rejected", append(fields, logger.String("code", run.ErrorCode), logger.Error(err))...)
	}

	if s.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if aerr := s.audit.SaveRun(actx, *run); aerr != nil {
		s.metrics.RecordError("audit_save")
		s.log.Warn("detection audit failed", logger.String("id", run.ID), logger.Error(aerr))
	}
}
