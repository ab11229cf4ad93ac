package repository

import (
	"context"
	"database/sql"
	"fmt"

	"UniAD/internal/domain/models"
	domrepo "UniAD/internal/domain/repository"
	pkgch "UniAD/pkg/clickhouse"
	applogger "UniAD/pkg/logger"
)

// DefaultAuditTable holds one row per detection run.
const DefaultAuditTable = "detection_runs"

const auditSchema = `
	CREATE TABLE IF NOT EXISTS %s (
		id             String,
		source         LowCardinality(String),
		kind           LowCardinality(String),
		points         Int64,
		training       Int64,
		raw            Int64,
		kept           Int64,
		aggregation_ms Int64,
		duration_ms    Int64,
		error_code     LowCardinality(String),
		finished_at    DateTime64(3, 'UTC')
	)
	ENGINE = MergeTree
	ORDER BY (kind, finished_at)
	TTL toDateTime(finished_at) + INTERVAL 30 DAY
`

// CHAuditStore implements AuditStore backed by ClickHouse. Only run
// summaries are written; series and flags never leave the process.
type CHAuditStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHAuditStore(ch *pkgch.Client, table string) *CHAuditStore {
	if table == "" {
		table = DefaultAuditTable
	}
	return &CHAuditStore{ch: ch, db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHAuditStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHAuditStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, []string{fmt.Sprintf(auditSchema, s.table)})
}

func (s *CHAuditStore) SaveRun(ctx context.Context, run models.DetectionRun) error {
	q := fmt.Sprintf("INSERT INTO %s (id, source, kind, points, training, raw, kept, aggregation_ms, duration_ms, error_code, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		run.ID,
		run.Source,
		string(run.Kind),
		int64(run.Points),
		int64(run.Training),
		int64(run.Raw),
		int64(run.Kept),
		run.Aggregation.Milliseconds(),
		run.Duration.Milliseconds(),
		run.ErrorCode,
		run.FinishedAt,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse save_run error",
				applogger.String("table", s.table),
				applogger.String("id", run.ID),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *CHAuditStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHAuditStore) Close() error {
	return nil // Managed by pkg
}

var _ domrepo.AuditStore = (*CHAuditStore)(nil)
