package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ContentLogConfig 内容日志配置
type ContentLogConfig struct {
	Dir        string
	FileName   string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// ContentLog 段落文本的追加日志
// 每个文本块写一行JSON: {"time":...,"link":...,"text":...}
type ContentLog struct {
	mu     sync.Mutex
	file   *lumberjack.Logger
	sink   *errorWriter
	logger zerolog.Logger
}

// errorWriter 记录底层写入错误,zerolog本身不向调用方返回写入错误
type errorWriter struct {
	w   io.Writer
	err error
}

func (e *errorWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil && e.err == nil {
		e.err = err
	}
	return n, err
}

// NewContentLog 创建内容日志,按大小滚动
func NewContentLog(cfg ContentLogConfig) (*ContentLog, error) {
	if cfg.FileName == "" {
		cfg.FileName = "content.log"
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("创建内容目录失败: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, cfg.FileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	sink := &errorWriter{w: file}

	return &ContentLog{
		file:   file,
		sink:   sink,
		logger: zerolog.New(sink).With().Timestamp().Logger(),
	}, nil
}

// Path 当前日志文件路径
func (c *ContentLog) Path() string {
	return c.file.Filename
}

// Append 按顺序写出文本块,返回第一个写入错误
func (c *ContentLog) Append(blocks []models.ContentBlock) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sink.err = nil
	for _, block := range blocks {
		c.logger.Log().Str("link", block.Link).Str("text", block.Text).Send()
		if c.sink.err != nil {
			return fmt.Errorf("写入内容日志失败: %w", c.sink.err)
		}
	}
	return nil
}

// Close 关闭日志文件
func (c *ContentLog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}
