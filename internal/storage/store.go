// Package storage 持久化爬取状态和页面文本
//
// RecordStore保存命名的链接记录集(已抓取集合/待爬集合),
// 提供CSV文件和SQLite两种后端;ContentLog以JSON行追加写出段落文本。
package storage

import (
	"fmt"
	"strings"
)

const (
	// BackendCSV 每个记录集一个CSV文件
	BackendCSV = "csv"

	// BackendSQLite 所有记录集存放在一个SQLite数据库中
	BackendSQLite = "sqlite"

	// VisitedSetName 已抓取集合的记录集名
	VisitedSetName = "used_links"

	// FrontierSetName 待爬集合的记录集名
	FrontierSetName = "unique_links"
)

// RecordStore 命名记录集存储
// 每个记录集是有序的字符串列表,Save整体替换旧内容
type RecordStore interface {
	// Exists 记录集是否已经保存过(内容可以为空)
	Exists(name string) (bool, error)

	// Load 按保存顺序读取记录集
	Load(name string) ([]string, error)

	// Save 原子地替换记录集内容
	Save(name string, records []string) error

	// Close 释放底层资源
	Close() error
}

// Open 按后端名称打开记录集存储
func Open(backend, dataDir string) (RecordStore, error) {
	switch strings.ToLower(backend) {
	case "", BackendCSV:
		return NewCSVStore(dataDir)
	case BackendSQLite:
		return NewSQLiteStore(dataDir)
	default:
		return nil, fmt.Errorf("未知的存储后端: %s (可选: %s, %s)", backend, BackendCSV, BackendSQLite)
	}
}
