package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteFileName 数据库文件名
const SQLiteFileName = "crawl_state.db"

// SQLiteStore 记录集保存在单个SQLite数据库中
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore 打开或创建<dir>/crawl_state.db
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	dbPath := filepath.Join(dir, SQLiteFileName)
	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite只支持单个写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, dbPath: dbPath}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("启用WAL失败: %w", err)
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建表失败: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS record_sets (
		name TEXT PRIMARY KEY,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS records (
		set_name TEXT NOT NULL,
		pos INTEGER NOT NULL,
		link TEXT NOT NULL,
		PRIMARY KEY (set_name, pos)
	);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Path 数据库文件路径
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Exists 记录集是否保存过
func (s *SQLiteStore) Exists(name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(context.Background(),
		"SELECT 1 FROM record_sets WHERE name = ?", name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("查询记录集失败: %w", err)
	}
	return true, nil
}

// Load 按pos顺序读取记录集
func (s *SQLiteStore) Load(name string) ([]string, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT link FROM records WHERE set_name = ? ORDER BY pos", name)
	if err != nil {
		return nil, fmt.Errorf("读取记录集失败: %w", err)
	}
	defer rows.Close()

	var records []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("读取记录失败: %w", err)
		}
		records = append(records, link)
	}
	return records, rows.Err()
}

// Save 在一个事务中替换记录集
func (s *SQLiteStore) Save(name string, records []string) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE set_name = ?", name); err != nil {
		return fmt.Errorf("清除旧记录失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO records (set_name, pos, link) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("准备插入语句失败: %w", err)
	}
	defer stmt.Close()

	for i, link := range records {
		if _, err := stmt.ExecContext(ctx, name, i, link); err != nil {
			return fmt.Errorf("插入记录失败: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO record_sets (name, updated_at) VALUES (?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`, name); err != nil {
		return fmt.Errorf("更新记录集失败: %w", err)
	}

	return tx.Commit()
}

// Close 关闭数据库连接
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
