package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// csvHeader 记录集CSV的唯一列名
const csvHeader = "Links"

// CSVStore 每个记录集保存为<dir>/<name>.csv
type CSVStore struct {
	dir string
}

// NewCSVStore 创建CSV存储,目录不存在时自动创建
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

// Path 返回记录集对应的文件路径
func (s *CSVStore) Path(name string) string {
	return filepath.Join(s.dir, name+".csv")
}

// Exists 检查记录集文件是否存在
func (s *CSVStore) Exists(name string) (bool, error) {
	_, err := os.Stat(s.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load 读取记录集,跳过表头
func (s *CSVStore) Load(name string) ([]string, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var records []string
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析%s失败: %w", s.Path(name), err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == csvHeader {
				continue
			}
		}
		if len(row) == 0 {
			continue
		}
		records = append(records, row[0])
	}

	return records, nil
}

// Save 写入临时文件后重命名,中途失败不会破坏已有文件
func (s *CSVStore) Save(name string, records []string) error {
	path := s.Path(name)

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{csvHeader}); err != nil {
		tmp.Close()
		return err
	}
	for _, record := range records {
		if err := w.Write([]string{record}); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("写入CSV失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("替换%s失败: %w", path, err)
	}
	return nil
}

// Close CSV存储没有需要释放的资源
func (s *CSVStore) Close() error {
	return nil
}
