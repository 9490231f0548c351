package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewRunID 生成运行ID,写入报告和检查点清单
func NewRunID() string {
	return uuid.New().String()
}

// CrawlReport 爬取报告
type CrawlReport struct {
	// 运行信息
	RunID   string    `json:"run_id"`
	SeedURL string    `json:"seed_url"`
	Mode    CrawlMode `json:"mode"`
	Workers int       `json:"workers"`
	Resumed bool      `json:"resumed"` // 是否从检查点恢复

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 结果
	FinalState  EngineState  `json:"final_state"`
	Stats       CrawlStats   `json:"stats"`
	FailedLinks []FailedLink `json:"failed_links"`
	Error       string       `json:"error,omitempty"`

	// 配置快照
	Config CrawlConfig `json:"config"`
}

// FailedLink 失败链接信息
type FailedLink struct {
	Link       string         `json:"link"`
	Kind       FetchErrorKind `json:"kind"`
	StatusCode int            `json:"status_code,omitempty"`
	ErrorMsg   string         `json:"error_msg"`
	Requeued   bool           `json:"requeued"` // 是否放回待爬集合
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
