package main

import (
	"encoding/json"
	"fmt"

	"github.com/RecoveryAshes/WikiCrawler/internal/core"
	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/RecoveryAshes/WikiCrawler/internal/storage"
	"github.com/RecoveryAshes/WikiCrawler/internal/utils"
)

// ValidateFlags 验证命令行标志,零值表示未指定
func ValidateFlags(mode, backend string, workers int) error {
	switch models.CrawlMode(mode) {
	case "", models.ModeSequential, models.ModePooled:
	default:
		return fmt.Errorf("无效的执行模式: %s (有效值: sequential, pooled)", mode)
	}

	switch backend {
	case "", storage.BackendCSV, storage.BackendSQLite:
	default:
		return fmt.Errorf("无效的存储后端: %s (有效值: csv, sqlite)", backend)
	}

	if workers < 0 || workers > 100 {
		return fmt.Errorf("并发数必须在1-100之间,当前值: %d", workers)
	}
	return nil
}

// printValidatedConfig 验证配置和头部,打印生效的设置(头部已脱敏)
func printValidatedConfig(cfg *core.Config, headerManager *core.HeaderManager) error {
	utils.Info("🔍 验证配置...")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("HTTP头部验证失败: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	utils.Info("✅ 配置验证通过!")
	fmt.Println(string(data))

	safeHeaders := headerManager.GetSafeHeaders()
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	fmt.Println(headerManager.SafeHeadersString())
	return nil
}
