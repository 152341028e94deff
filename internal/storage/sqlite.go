package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"accmonitor/internal/logger"

	_ "modernc.org/sqlite" // 纯Go实现的SQLite驱动
)

// SQLiteStorage SQLite存储实现
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage 创建SQLite存储
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	// modernc.org/sqlite 只识别 _pragma=name(value) 形式的连接参数
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite 建议单个写连接
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

// Init 初始化数据库表
func (s *SQLiteStorage) Init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		payload TEXT NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Load 按写入顺序读取全部记录
func (s *SQLiteStorage) Load(ctx context.Context) (*History, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM snapshots ORDER BY seq ASC`)
	if err != nil {
		return NewHistory(nil), fmt.Errorf("查询历史失败: %w", err)
	}
	defer rows.Close()

	var entries []*Snapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return NewHistory(nil), fmt.Errorf("扫描历史失败: %w", err)
		}
		snap, err := decodeSnapshot([]byte(payload))
		if err != nil {
			return NewHistory(nil), fmt.Errorf("%w: %s: %v", ErrCorruptHistory, s.path, err)
		}
		entries = append(entries, snap)
	}
	if err := rows.Err(); err != nil {
		return NewHistory(nil), fmt.Errorf("遍历历史失败: %w", err)
	}

	return NewHistory(entries), nil
}

// Save 在单个事务内整体替换记录
func (s *SQLiteStorage) Save(ctx context.Context, history *History) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("清理历史失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshots (id, timestamp, status, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备插入语句失败: %w", err)
	}
	defer stmt.Close()

	for _, snap := range history.Entries() {
		payload, err := encodeSnapshot(snap)
		if err != nil {
			return fmt.Errorf("序列化记录失败: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, snap.ID, snap.Timestamp.UnixMilli(), string(snap.Status), string(payload)); err != nil {
			return fmt.Errorf("保存记录失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	logger.Debug("storage", "历史已保存", "backend", "sqlite", "entries", history.Len())
	return nil
}
