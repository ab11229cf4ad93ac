package models

import (
	"fmt"
	"time"

	"UniAD/pkg/util"
)

// Request and response bodies shared by the HTTP, WebSocket, Kafka and CLI
// entry points.

// DetectParameters carries every tunable of every kind. Fields that do not
// apply to the requested kind are ignored.
type DetectParameters struct {
	C                  *float64 `json:"c,omitempty" validate:"omitempty,gte=0"`
	Window             string   `json:"window,omitempty"`
	High               *float64 `json:"high,omitempty"`
	Low                *float64 `json:"low,omitempty"`
	AggregateAnomalies string   `json:"aggregate_anomalies,omitempty"`
	AggregateMode      string   `json:"aggregate_mode,omitempty" default:"anchored" validate:"oneof=anchored chained"`
}

// DetectRequest is the body of every detect endpoint. Series are keyed by
// millisecond epoch strings.
type DetectRequest struct {
	TrainData  map[string]*float64 `json:"train_data,omitempty"`
	ScoreData  map[string]*float64 `json:"score_data" validate:"required"`
	Parameters DetectParameters    `json:"parameters"`
}

// DetectResponse mirrors the scoring keys with a flag each.
type DetectResponse struct {
	AnomalyList map[string]bool `json:"anomaly_list"`
}

// KindDefaults holds the fallback sensitivity and window of one kind.
type KindDefaults struct {
	C      float64 `yaml:"c"`
	Window string  `yaml:"window"`
}

// ParamDefaults maps each windowed kind to its fallbacks.
type ParamDefaults map[StrategyKind]KindDefaults

// DefaultParams returns the built-in fallbacks.
func DefaultParams() ParamDefaults {
	return ParamDefaults{
		KindPersist:         {C: 3.0, Window: "28D"},
		KindLevelShift:      {C: 20.0, Window: "60S"},
		KindVolatilityShift: {C: 20.0, Window: "60S"},
	}
}

// ToInput decodes the request into a pipeline input for kind.
func (r DetectRequest) ToInput(kind StrategyKind, defs ParamDefaults) (DetectionInput, error) {
	in := DetectionInput{Kind: kind}

	scoring, err := DecodeSeries(r.ScoreData, "score_data")
	if err != nil {
		return DetectionInput{}, err
	}
	in.Scoring = scoring

	if r.TrainData != nil {
		training, err := DecodeSeries(r.TrainData, "train_data")
		if err != nil {
			return DetectionInput{}, err
		}
		in.Training = &training
	}

	params, err := r.Parameters.strategyParams(kind, defs)
	if err != nil {
		return DetectionInput{}, err
	}
	in.Params = params

	agg, err := r.Parameters.aggregation()
	if err != nil {
		return DetectionInput{}, err
	}
	in.Aggregation = agg
	return in, nil
}

func (p DetectParameters) strategyParams(kind StrategyKind, defs ParamDefaults) (StrategyParams, error) {
	if kind == KindThreshold {
		return ThresholdParams{High: p.High, Low: p.Low}, nil
	}
	def, ok := defs[kind]
	if !ok {
		def = DefaultParams()[kind]
	}
	c := def.C
	if p.C != nil {
		c = *p.C
	}
	raw := def.Window
	if p.Window != "" {
		raw = p.Window
	}
	window, err := util.ParseWindow(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var params StrategyParams
	switch kind {
	case KindPersist:
		params = AdaptiveParams{C: c, Window: window}
	case KindLevelShift:
		params = LevelShiftParams{C: c, Window: window}
	case KindVolatilityShift:
		params = VolatilityShiftParams{C: c, Window: window}
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, kind)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func (p DetectParameters) aggregation() (AggregationSpec, error) {
	mode, err := ParseAnchorMode(p.AggregateMode)
	if err != nil {
		return AggregationSpec{}, err
	}
	spec := AggregationSpec{Mode: mode}
	if p.AggregateAnomalies == "" {
		return spec, nil
	}
	w, err := util.ParseWindow(p.AggregateAnomalies)
	if err != nil {
		return AggregationSpec{}, fmt.Errorf("%w: aggregate_anomalies: %v", ErrInvalidInput, err)
	}
	spec.Window = w
	return spec, nil
}

// DecodeSeries parses a millisecond-keyed JSON object into a sorted series.
// Keys that denote the same instant, null values and non-finite values are
// rejected.
func DecodeSeries(raw map[string]*float64, name string) (TimeSeries, error) {
	points := make([]TimePoint, 0, len(raw))
	for k, v := range raw {
		ts, err := util.ParseEpochMillis(k)
		if err != nil {
			return TimeSeries{}, fmt.Errorf("%w: %s: %v", ErrInvalidInput, name, err)
		}
		if v == nil {
			return TimeSeries{}, fmt.Errorf("%w: %s: missing value at %s", ErrInvalidInput, name, k)
		}
		points = append(points, TimePoint{Timestamp: ts, Value: *v})
	}
	s, err := SortedTimeSeries(points)
	if err != nil {
		return TimeSeries{}, fmt.Errorf("%s: %w", name, err)
	}
	return s, nil
}

// EncodeSeries renders a series back into its keyed form.
func EncodeSeries(s TimeSeries) map[string]*float64 {
	out := make(map[string]*float64, s.Len())
	for i := 0; i < s.Len(); i++ {
		p := s.At(i)
		v := p.Value
		out[util.FormatEpochMillis(p.Timestamp)] = &v
	}
	return out
}

// EncodeFlags renders flags keyed by canonical millisecond epoch.
func EncodeFlags(f FlagSeries) map[string]bool {
	out := make(map[string]bool, f.Len())
	for i := 0; i < f.Len(); i++ {
		out[util.FormatEpochMillis(f.Timestamp(i))] = f.Flag(i)
	}
	return out
}

// FlaggedKeys lists the anomalous keys in time order.
func FlaggedKeys(f FlagSeries) []string {
	var out []string
	for i := 0; i < f.Len(); i++ {
		if f.Flag(i) {
			out = append(out, util.FormatEpochMillis(f.Timestamp(i)))
		}
	}
	return out
}

// DetectionJob is a queued detection request.
type DetectionJob struct {
	ID   string `json:"id"`
	Kind string `json:"kind" validate:"required,oneof=persist threshold levelshift volatilityshift"`
	DetectRequest
}

// EventError is the failure part of a DetectionEvent.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DetectionEvent is the outcome of a DetectionJob.
type DetectionEvent struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	AnomalyList map[string]bool `json:"anomaly_list,omitempty"`
	Error       *EventError     `json:"error,omitempty"`
	Flagged     int             `json:"flagged"`
	Kept        int             `json:"kept"`
	DurationMs  int64           `json:"duration_ms"`
	FinishedAt  time.Time       `json:"finished_at"`
}
