package detectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"UniAD/internal/domain/models"
	"UniAD/internal/domain/service"
	xhttp "UniAD/pkg/http"
	"UniAD/pkg/util"
)

// KernelClient posts detection requests to an external scoring service that
// speaks the same JSON contract as this one.
type KernelClient struct {
	baseURL  string
	client   *xhttp.Client
	attempts int
}

// NewKernelClient builds a client with timeout and retry count.
func NewKernelClient(baseURL string, timeout time.Duration, attempts int) *KernelClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if attempts < 1 {
		attempts = 1
	}
	return &KernelClient{
		baseURL:  baseURL,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		attempts: attempts,
	}
}

// PostJSON posts the given payload to path under baseURL and decodes JSON into dest.
func (k *KernelClient) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if k.client == nil || k.baseURL == "" {
		return fmt.Errorf("kernel http client not initialized")
	}
	err := k.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    k.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries transient failures with a linear backoff. Client
// errors are returned at once.
func (k *KernelClient) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	var err error
	for i := 1; i <= k.attempts; i++ {
		err = k.PostJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.ClientError() {
			return err
		}
		if i == k.attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

var kernelPaths = map[models.StrategyKind]string{
	models.KindPersist:         "/detect-point-anomalies",
	models.KindThreshold:       "/detect-threshold-anomalies",
	models.KindLevelShift:      "/detect-levelshift-anomalies",
	models.KindVolatilityShift: "/detect-volatilityshift-anomalies",
}

// Remote delegates scoring of one kind to a KernelClient. Aggregation is
// never forwarded; the pipeline applies it locally.
type Remote struct {
	kind   models.StrategyKind
	kernel *KernelClient
}

func NewRemote(kind models.StrategyKind, kernel *KernelClient) *Remote {
	return &Remote{kind: kind, kernel: kernel}
}

func (r *Remote) Kind() models.StrategyKind { return r.kind }

func (r *Remote) RequiresTraining() bool { return r.kind == models.KindPersist }

func (r *Remote) Detect(ctx context.Context, training *models.TimeSeries, scoring models.TimeSeries, params models.StrategyParams) (models.FlagSeries, error) {
	if params == nil || params.Kind() != r.kind {
		return models.FlagSeries{}, fmt.Errorf("%w: %s expects its own parameters, got %T", models.ErrInvalidInput, r.kind, params)
	}
	if err := params.Validate(); err != nil {
		return models.FlagSeries{}, err
	}
	if r.RequiresTraining() && training == nil {
		return models.FlagSeries{}, fmt.Errorf("%w: %s requires a training series", models.ErrInvalidInput, r.kind)
	}
	path, ok := kernelPaths[r.kind]
	if !ok {
		return models.FlagSeries{}, fmt.Errorf("%w: no remote endpoint for %q", models.ErrInvalidInput, r.kind)
	}

	req := models.DetectRequest{
		ScoreData:  models.EncodeSeries(scoring),
		Parameters: remoteParameters(params),
	}
	if training != nil {
		req.TrainData = models.EncodeSeries(*training)
	}

	var resp models.DetectResponse
	if err := r.kernel.PostJSONWithRetry(ctx, path, req, &resp); err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.ClientError() {
			return models.FlagSeries{}, fmt.Errorf("%w: remote kernel rejected request: %v", models.ErrInvalidInput, err)
		}
		return models.FlagSeries{}, fmt.Errorf("%w: %w", models.ErrKernelUnavailable, err)
	}

	flags := make([]bool, scoring.Len())
	for i := range flags {
		key := util.FormatEpochMillis(scoring.At(i).Timestamp)
		v, ok := resp.AnomalyList[key]
		if !ok {
			return models.FlagSeries{}, fmt.Errorf("%w: remote kernel omitted timestamp %s", models.ErrKernelUnavailable, key)
		}
		flags[i] = v
	}
	return models.FlagsFor(scoring, flags)
}

func remoteParameters(p models.StrategyParams) models.DetectParameters {
	var out models.DetectParameters
	switch v := p.(type) {
	case models.AdaptiveParams:
		out.C, out.Window = &v.C, formatWindow(v.Window)
	case models.LevelShiftParams:
		out.C, out.Window = &v.C, formatWindow(v.Window)
	case models.VolatilityShiftParams:
		out.C, out.Window = &v.C, formatWindow(v.Window)
	case models.ThresholdParams:
		out.High, out.Low = v.High, v.Low
	}
	return out
}

// formatWindow renders a duration as an offset alias the remote side parses.
func formatWindow(d time.Duration) string {
	switch {
	case d%time.Second == 0:
		return fmt.Sprintf("%dS", d/time.Second)
	case d%time.Millisecond == 0:
		return fmt.Sprintf("%dL", d/time.Millisecond)
	default:
		return fmt.Sprintf("%dN", d.Nanoseconds())
	}
}

var _ service.Strategy = (*Remote)(nil)
