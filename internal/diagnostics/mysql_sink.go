package diagnostics

import (
	"context"
	"database/sql"
	"encoding/json"

	"PromptBridge/internal/storage/mysql"
)

// DiagnosticSaver 是 MySQL 仓库的写入能力。
type DiagnosticSaver interface {
	Save(ctx context.Context, record mysql.DiagnosticRecord) error
}

// MySQLSink 将诊断记录持久化到 MySQL。
type MySQLSink struct {
	repo DiagnosticSaver
}

// NewMySQLSink 创建 MySQL Sink。
func NewMySQLSink(repo DiagnosticSaver) *MySQLSink {
	return &MySQLSink{repo: repo}
}

// Emit 写入一条记录。
func (s *MySQLSink) Emit(ctx context.Context, record Record) error {
	row := mysql.DiagnosticRecord{
		ID:            record.ID,
		ModelID:       record.ModelID,
		Shape:         record.Shape,
		Resolved:      record.Resolved,
		Response:      string(record.Response),
		LatencyMillis: record.LatencyMillis,
		OccurredAt:    record.OccurredAt,
	}
	if record.Content != nil {
		row.Content = sql.NullString{String: string(record.Content), Valid: true}
	}
	return s.repo.Save(ctx, row)
}

// FromRow 将数据库行还原为诊断记录。
func FromRow(row mysql.DiagnosticRecord) Record {
	record := Record{
		ID:            row.ID,
		ModelID:       row.ModelID,
		Shape:         row.Shape,
		Resolved:      row.Resolved,
		Response:      json.RawMessage(row.Response),
		LatencyMillis: row.LatencyMillis,
		OccurredAt:    row.OccurredAt,
	}
	if row.Content.Valid {
		record.Content = json.RawMessage(row.Content.String)
	}
	return record
}
