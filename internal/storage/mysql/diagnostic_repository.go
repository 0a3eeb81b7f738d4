package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DiagnosticRecord 表示一次模型调用诊断信息的落库结构。
type DiagnosticRecord struct {
	ID            string
	ModelID       string
	Shape         string
	Resolved      bool
	Content       sql.NullString
	Response      string
	LatencyMillis int64
	OccurredAt    time.Time
}

// DiagnosticRepository 使用 MySQL 保存诊断记录。
type DiagnosticRepository struct {
	db *sql.DB
}

// NewDiagnosticRepository 创建连接池并执行迁移。
func NewDiagnosticRepository(ctx context.Context, cfg Config) (*DiagnosticRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &DiagnosticRepository{db: db}, nil
}

const insertDiagnosticSQL = `INSERT INTO invocation_diagnostics
    (id, model_id, shape, resolved, content, response, latency_ms, occurred_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Save 写入一条诊断记录。
func (r *DiagnosticRepository) Save(ctx context.Context, record DiagnosticRecord) error {
	if _, err := r.db.ExecContext(ctx, insertDiagnosticSQL,
		record.ID,
		record.ModelID,
		record.Shape,
		record.Resolved,
		record.Content,
		record.Response,
		record.LatencyMillis,
		record.OccurredAt.UTC(),
	); err != nil {
		return fmt.Errorf("写入诊断记录失败: %w", err)
	}
	return nil
}

const listDiagnosticsSQL = `SELECT id, model_id, shape, resolved, content, response, latency_ms, occurred_at
    FROM invocation_diagnostics ORDER BY occurred_at DESC LIMIT ?`

const listUnresolvedSQL = `SELECT id, model_id, shape, resolved, content, response, latency_ms, occurred_at
    FROM invocation_diagnostics WHERE resolved = 0 ORDER BY occurred_at DESC LIMIT ?`

// ListLatest 按时间倒序返回最近的诊断记录；unresolvedOnly 为 true 时只返回未解析出内容的记录。
func (r *DiagnosticRepository) ListLatest(ctx context.Context, limit int, unresolvedOnly bool) ([]DiagnosticRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := listDiagnosticsSQL
	if unresolvedOnly {
		query = listUnresolvedSQL
	}

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("查询诊断记录失败: %w", err)
	}
	defer rows.Close()

	var records []DiagnosticRecord
	for rows.Next() {
		var record DiagnosticRecord
		if err := rows.Scan(
			&record.ID,
			&record.ModelID,
			&record.Shape,
			&record.Resolved,
			&record.Content,
			&record.Response,
			&record.LatencyMillis,
			&record.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("解析诊断记录失败: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历诊断记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (r *DiagnosticRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
