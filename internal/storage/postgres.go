package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"accmonitor/internal/config"
	"accmonitor/internal/logger"
)

// PostgresStorage PostgreSQL 存储实现
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage 创建 PostgreSQL 存储
func NewPostgresStorage(cfg *config.PostgresConfig) (*PostgresStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("解析 PostgreSQL 连接配置失败: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MaxConnLifetime = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 PostgreSQL 连接池失败: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("连接 PostgreSQL 失败: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Init 初始化数据库表
func (s *PostgresStorage) Init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS acc_snapshots (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		observed_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		payload JSONB NOT NULL
	);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("初始化 PostgreSQL 数据库失败: %w", err)
	}
	return nil
}

// Close 关闭连接池
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// Load 按写入顺序读取全部记录
func (s *PostgresStorage) Load(ctx context.Context) (*History, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM acc_snapshots ORDER BY seq ASC`)
	if err != nil {
		return NewHistory(nil), fmt.Errorf("查询历史失败: %w", err)
	}
	defer rows.Close()

	var entries []*Snapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return NewHistory(nil), fmt.Errorf("扫描历史失败: %w", err)
		}
		snap, err := decodeSnapshot(payload)
		if err != nil {
			return NewHistory(nil), fmt.Errorf("%w: acc_snapshots: %v", ErrCorruptHistory, err)
		}
		entries = append(entries, snap)
	}
	if err := rows.Err(); err != nil {
		return NewHistory(nil), fmt.Errorf("遍历历史失败: %w", err)
	}

	return NewHistory(entries), nil
}

// Save 在单个事务内整体替换记录
func (s *PostgresStorage) Save(ctx context.Context, history *History) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM acc_snapshots`); err != nil {
		return fmt.Errorf("清理历史失败: %w", err)
	}

	batch := &pgx.Batch{}
	for _, snap := range history.Entries() {
		payload, err := encodeSnapshot(snap)
		if err != nil {
			return fmt.Errorf("序列化记录失败: %w", err)
		}
		batch.Queue(`INSERT INTO acc_snapshots (id, observed_at, status, payload) VALUES ($1, $2, $3, $4)`,
			snap.ID, snap.Timestamp, string(snap.Status), payload)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("保存记录失败: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	logger.Debug("storage", "历史已保存", "backend", "postgres", "entries", history.Len())
	return nil
}
