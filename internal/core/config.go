package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/RecoveryAshes/WikiCrawler/internal/storage"
	"github.com/RecoveryAshes/WikiCrawler/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀,如 WIKICRAWLER_CRAWL_MAX_LINKS
const EnvPrefix = "WIKICRAWLER"

// Config 应用程序配置
type Config struct {
	Crawl   models.CrawlConfig  `mapstructure:"crawl" json:"crawl"`
	Fetch   models.FetchConfig  `mapstructure:"fetch" json:"fetch"`
	Filter  models.FilterConfig `mapstructure:"filter" json:"filter"`
	Storage StorageConfig       `mapstructure:"storage" json:"storage"`
	Content ContentConfig       `mapstructure:"content" json:"content"`
	Logging utils.LogConfig     `mapstructure:"logging" json:"logging"`
	Report  ReportConfig        `mapstructure:"report" json:"report"`

	// 实际读取的配置文件,未找到时为空
	ConfigFile string `mapstructure:"-" json:"config_file,omitempty"`
}

// StorageConfig 记录集存储配置
type StorageConfig struct {
	Backend string `mapstructure:"backend" json:"backend"`   // csv | sqlite
	DataDir string `mapstructure:"data_dir" json:"data_dir"` // 记录集和清单所在目录
}

// ContentConfig 内容日志配置
type ContentConfig struct {
	FileName   string `mapstructure:"file_name" json:"file_name"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	Compress   bool   `mapstructure:"compress" json:"compress"`
}

// ReportConfig 运行报告配置
type ReportConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Dir     string `mapstructure:"dir" json:"dir"`
}

// LoadConfig 加载配置
// 优先级: 默认值 < 配置文件 < 环境变量;命令行参数由调用方覆盖
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".wikicrawler"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}
	config.ConfigFile = v.ConfigFileUsed()

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.seed_url", "https://en.wikipedia.org/wiki/Canada")
	v.SetDefault("crawl.site_root", "https://en.wikipedia.org")
	v.SetDefault("crawl.max_links", 20)
	v.SetDefault("crawl.pages_in_memory", 20)
	v.SetDefault("crawl.unique_links_in_memory", 100000)
	v.SetDefault("crawl.mode", string(models.ModeSequential))
	v.SetDefault("crawl.workers", 8)
	v.SetDefault("crawl.fetch_retries", 0)
	v.SetDefault("crawl.retry_backoff", "2s")
	v.SetDefault("crawl.skip_failed_links", false)
	v.SetDefault("crawl.progress_every", 10)

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("fetch.rate_limit", 0)
	v.SetDefault("fetch.max_body_size", 10*1024*1024)

	v.SetDefault("filter.article_marker", "/wiki/")
	v.SetDefault("filter.main_page", "Main_Page")

	v.SetDefault("storage.backend", storage.BackendCSV)
	v.SetDefault("storage.data_dir", "data")

	v.SetDefault("content.file_name", "content.log")
	v.SetDefault("content.max_size_mb", 1000)
	v.SetDefault("content.max_backups", 5000)
	v.SetDefault("content.compress", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.no_color", false)

	v.SetDefault("report.enabled", true)
	v.SetDefault("report.dir", "reports")
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Crawl.Validate(); err != nil {
		return &models.ConfigError{FilePath: c.ConfigFile, Cause: err}
	}
	if c.Fetch.Timeout < 0 {
		return &models.ConfigError{FilePath: c.ConfigFile, Cause: fmt.Errorf("fetch.timeout不能为负数")}
	}
	if c.Fetch.RateLimit < 0 {
		return &models.ConfigError{FilePath: c.ConfigFile, Cause: fmt.Errorf("fetch.rate_limit不能为负数")}
	}
	if c.Filter.ArticleMarker == "" {
		return &models.ConfigError{FilePath: c.ConfigFile, Cause: fmt.Errorf("filter.article_marker不能为空")}
	}
	switch strings.ToLower(c.Storage.Backend) {
	case storage.BackendCSV, storage.BackendSQLite:
	default:
		return &models.ConfigError{
			FilePath: c.ConfigFile,
			Cause:    fmt.Errorf("无效的存储后端: %s (有效值: csv, sqlite)", c.Storage.Backend),
		}
	}
	if c.Storage.DataDir == "" {
		return &models.ConfigError{FilePath: c.ConfigFile, Cause: fmt.Errorf("storage.data_dir不能为空")}
	}
	if c.Content.MaxSizeMB < 1 {
		return &models.ConfigError{FilePath: c.ConfigFile, Cause: fmt.Errorf("content.max_size_mb必须大于0")}
	}
	return nil
}

// CLIOverrides 命令行参数,零值表示未指定
type CLIOverrides struct {
	SeedURL  string
	SiteRoot string
	MaxLinks int
	Workers  int
	Mode     string
	DataDir  string
	Backend  string
	LogLevel string
	Timeout  time.Duration
	Retries  int
	SkipFail bool
}

// MergeCLIFlags 合并命令行参数,命令行优先于配置文件
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	if o.SeedURL != "" {
		c.Crawl.SeedURL = o.SeedURL
	}
	if o.SiteRoot != "" {
		c.Crawl.SiteRoot = o.SiteRoot
	}
	if o.MaxLinks > 0 {
		c.Crawl.MaxLinks = o.MaxLinks
	}
	if o.Workers > 0 {
		c.Crawl.Workers = o.Workers
	}
	if o.Mode != "" {
		c.Crawl.Mode = models.CrawlMode(o.Mode)
	}
	if o.DataDir != "" {
		c.Storage.DataDir = o.DataDir
	}
	if o.Backend != "" {
		c.Storage.Backend = o.Backend
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.Timeout > 0 {
		c.Fetch.Timeout = o.Timeout
	}
	if o.Retries > 0 {
		c.Crawl.FetchRetries = o.Retries
	}
	if o.SkipFail {
		c.Crawl.SkipFailedLinks = true
	}
}
