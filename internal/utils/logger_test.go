package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func initTestLogger(t *testing.T, level string) string {
	t.Helper()

	dir := t.TempDir()
	config := DefaultLogConfig()
	config.Level = level
	config.LogDir = dir
	config.Compress = false
	config.NoColor = true

	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}
	t.Cleanup(func() {
		Logger = zerolog.Nop()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})
	return dir
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	return string(content)
}

func TestInitLogger(t *testing.T) {
	dir := initTestLogger(t, "debug")

	Info("测试信息日志")
	Debugf("调试 %d", 1)

	content := readLog(t, filepath.Join(dir, MainLogFile))
	if !strings.Contains(content, "测试信息日志") {
		t.Errorf("主日志缺少信息日志: %s", content)
	}
	if !strings.Contains(content, "调试 1") {
		t.Errorf("debug级别应该写入调试日志: %s", content)
	}
}

func TestLogLevels(t *testing.T) {
	dir := initTestLogger(t, "info")

	Infof("格式化信息日志: %s", "测试")
	Warnf("格式化警告日志: %d", 123)
	Debug("调试日志不应该出现")

	content := readLog(t, filepath.Join(dir, MainLogFile))
	if !strings.Contains(content, "格式化信息日志: 测试") || !strings.Contains(content, "格式化警告日志: 123") {
		t.Errorf("缺少info/warn日志: %s", content)
	}
	if strings.Contains(content, "调试日志不应该出现") {
		t.Error("info级别不应该写入debug日志")
	}
}

func TestErrorLogSplit(t *testing.T) {
	dir := initTestLogger(t, "info")

	Warn("只在主日志中的警告")
	Error(errors.New("磁盘已满"), "写入检查点失败")
	Errorf("抓取失败: %s", "/wiki/Canada")

	errContent := readLog(t, filepath.Join(dir, ErrorLogFile))
	if strings.Contains(errContent, "只在主日志中的警告") {
		t.Error("错误日志不应包含warn级别")
	}
	if !strings.Contains(errContent, "写入检查点失败") || !strings.Contains(errContent, "磁盘已满") {
		t.Errorf("错误日志缺少error记录: %s", errContent)
	}
	if !strings.Contains(errContent, "/wiki/Canada") {
		t.Errorf("错误日志缺少格式化记录: %s", errContent)
	}

	mainContent := readLog(t, filepath.Join(dir, MainLogFile))
	if !strings.Contains(mainContent, "只在主日志中的警告") || !strings.Contains(mainContent, "写入检查点失败") {
		t.Errorf("主日志应包含全部级别: %s", mainContent)
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	initTestLogger(t, "verbose")

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("无效级别应回退为info, 实际%s", zerolog.GlobalLevel())
	}
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != "info" {
		t.Errorf("默认日志级别错误: 期望 'info', 得到 '%s'", config.Level)
	}
	if config.LogDir != "logs" {
		t.Errorf("默认日志目录错误: 期望 'logs', 得到 '%s'", config.LogDir)
	}
	if config.MaxSize != 10 || config.MaxBackups != 3 || config.MaxAge != 28 {
		t.Errorf("默认轮转参数错误: %+v", config)
	}
	if !config.Compress {
		t.Error("默认应该启用压缩")
	}
}
