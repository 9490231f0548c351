package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CheckpointManifestFile 检查点清单文件名
const CheckpointManifestFile = "checkpoint.json"

// Checkpoint 检查点清单
// 记录集本身由RecordStore保存,清单只用于人工排查和恢复日志
type Checkpoint struct {
	// 运行信息
	RunID   string `json:"run_id"`   // 写入该检查点的运行ID
	SeedURL string `json:"seed_url"` // 种子链接

	// 记录集
	FrontierSet string `json:"frontier_set"` // 待爬集合记录集名
	VisitedSet  string `json:"visited_set"`  // 已抓取集合记录集名
	Frontier    int    `json:"frontier"`     // 待爬链接数
	Visited     int    `json:"visited"`      // 已抓取链接数

	// 状态
	State     EngineState `json:"state"`     // 写入时的引擎状态
	Emergency bool        `json:"emergency"` // 是否为紧急转储

	// 时间戳
	CreatedAt time.Time `json:"created_at"` // 首次创建时间
	UpdatedAt time.Time `json:"updated_at"` // 最后更新时间
}

// ToJSON 序列化为JSON
func (c *Checkpoint) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON 从JSON反序列化
func (c *Checkpoint) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}

// SaveToFile 原子写入文件
func (c *Checkpoint) SaveToFile(path string) error {
	data, err := c.ToJSON()
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadCheckpointFromFile 从文件加载
func LoadCheckpointFromFile(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := cp.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析检查点清单失败 [%s]: %w", filepath.Base(path), err)
	}

	return &cp, nil
}
