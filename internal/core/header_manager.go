package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/RecoveryAshes/WikiCrawler/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "WikiCrawler/1.0 (+https://github.com/RecoveryAshes/WikiCrawler)"
)

// HeaderManager 按优先级合并HTTP请求头部
// 实现 models.HeaderProvider,可被多个抓取会话并发调用
type HeaderManager struct {
	// defaults 系统默认头部
	defaults http.Header

	// config 配置文件fetch.headers
	config http.Header

	// cli 命令行 -H
	cli http.Header

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor

	once   sync.Once
	merged http.Header
	err    error
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - userAgent: 默认User-Agent,为空时使用DefaultUserAgent
//   - configHeaders: 配置文件中的头部
//   - cliHeaders: 命令行传递的 "Name: Value" 列表
func NewHeaderManager(userAgent string, configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	hm := &HeaderManager{
		defaults: http.Header{
			"User-Agent": []string{userAgent},
			"Accept":     []string{"text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"},
		},
		config:    make(http.Header, len(configHeaders)),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
	}

	// viper会把键名转成小写,Set恢复规范形式
	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}

	cli, err := models.CliHeaders(cliHeaders).Parse()
	if err != nil {
		return nil, err
	}
	hm.cli = cli

	return hm, nil
}

// Validate 按 默认 → 配置 → 命令行 的顺序验证
func (hm *HeaderManager) Validate() error {
	for _, layer := range []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	} {
		if err := hm.validator.Validate(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.name, err)
			return err
		}
	}
	return nil
}

// GetMergedHeaders 合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 脱敏后的合并头部,用于日志和配置打印
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// SafeHeadersString 脱敏后的单行表示
func (hm *HeaderManager) SafeHeadersString() string {
	return hm.redactor.RedactToString(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
// 首次调用时验证并缓存,之后返回缓存的副本
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.once.Do(func() {
		if err := hm.Validate(); err != nil {
			hm.err = err
			return
		}
		hm.merged = hm.GetMergedHeaders()
		utils.Debugf("HTTP头部: %s", hm.SafeHeadersString())
	})
	if hm.err != nil {
		return nil, hm.err
	}
	return hm.merged.Clone(), nil
}
