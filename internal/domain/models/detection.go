package models

import "time"

// DetectionInput is everything one pipeline invocation needs.
type DetectionInput struct {
	Kind        StrategyKind
	Training    *TimeSeries
	Scoring     TimeSeries
	Params      StrategyParams
	Aggregation AggregationSpec
}

// DetectionResult is the final flag series handed back to the caller.
type DetectionResult struct {
	Kind  StrategyKind
	Flags FlagSeries
	// Raw is the number of flags produced by the strategy before aggregation.
	Raw int
}

// Kept is the number of flags surviving aggregation.
func (r DetectionResult) Kept() int { return r.Flags.Flagged() }

// DetectionRun summarizes one completed or failed invocation for auditing.
type DetectionRun struct {
	ID          string
	Source      string // http, kafka, ws, cli
	Kind        StrategyKind
	Points      int
	Training    int
	Raw         int
	Kept        int
	Aggregation time.Duration
	Duration    time.Duration
	ErrorCode   string
	FinishedAt  time.Time
}
