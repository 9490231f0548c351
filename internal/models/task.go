package models

import (
	"fmt"
	"net/url"
	"time"
)

// EngineState 爬取引擎状态
type EngineState string

const (
	StateBootstrapping EngineState = "bootstrapping" // 加载检查点或使用种子链接
	StateRunning       EngineState = "running"       // 循环抓取
	StateDraining      EngineState = "draining"      // 最终持久化
	StateStopped       EngineState = "stopped"       // 终止
)

// CrawlMode 执行策略
type CrawlMode string

const (
	ModeSequential CrawlMode = "sequential" // 单线程顺序抓取,完全确定
	ModePooled     CrawlMode = "pooled"     // 固定宽度的工作池
)

// CrawlStats 爬取统计
type CrawlStats struct {
	Visited        int     `json:"visited"`         // 已抓取链接数
	Frontier       int     `json:"frontier"`        // 待抓取链接数
	Buffered       int     `json:"buffered"`        // 内存中待写出的文本块
	Fetched        int     `json:"fetched"`         // 本次运行抓取的页面数
	Failed         int     `json:"failed"`          // 本次运行失败的页面数
	Discovered     int     `json:"discovered"`      // 本次运行新加入待爬集合的链接数
	ContentBlocks  int     `json:"content_blocks"`  // 已写入内容日志的文本块
	Checkpoints    int     `json:"checkpoints"`     // 成功的记录集持久化次数
	CheckpointErrs int     `json:"checkpoint_errs"` // 失败的持久化次数
	Duration       float64 `json:"duration"`        // 总耗时(秒)
}

// CrawlConfig 爬取配置
type CrawlConfig struct {
	SeedURL             string        `mapstructure:"seed_url" json:"seed_url"`                             // 种子链接,仅在没有检查点时使用
	SiteRoot            string        `mapstructure:"site_root" json:"site_root"`                           // 站点根地址,拼接相对链接
	MaxLinks            int           `mapstructure:"max_links" json:"max_links"`                           // 已抓取数预算
	PagesInMemory       int           `mapstructure:"pages_in_memory" json:"pages_in_memory"`               // 每抓取多少页写出一次内容
	UniqueLinksInMemory int           `mapstructure:"unique_links_in_memory" json:"unique_links_in_memory"` // 待爬集合持久化步长
	Mode                CrawlMode     `mapstructure:"mode" json:"mode"`                                     // sequential | pooled
	Workers             int           `mapstructure:"workers" json:"workers"`                               // 工作池宽度
	FetchRetries        int           `mapstructure:"fetch_retries" json:"fetch_retries"`                   // 临时错误重试次数
	RetryBackoff        time.Duration `mapstructure:"retry_backoff" json:"retry_backoff"`                   // 重试间隔基数
	SkipFailedLinks     bool          `mapstructure:"skip_failed_links" json:"skip_failed_links"`           // 永久失败的链接跳过而不终止
	ProgressEvery       int           `mapstructure:"progress_every" json:"progress_every"`                 // 进度日志间隔
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if err := ValidateURL(c.SeedURL); err != nil {
		return fmt.Errorf("种子链接无效: %w", err)
	}
	if err := ValidateSiteRoot(c.SiteRoot); err != nil {
		return fmt.Errorf("站点根地址无效: %w", err)
	}
	if c.MaxLinks < 0 {
		return fmt.Errorf("max_links不能为负数")
	}
	if c.PagesInMemory < 1 {
		return fmt.Errorf("pages_in_memory必须大于0")
	}
	if c.UniqueLinksInMemory < 1 {
		return fmt.Errorf("unique_links_in_memory必须大于0")
	}
	if c.Mode != ModeSequential && c.Mode != ModePooled {
		return fmt.Errorf("无效的执行模式: %s (有效值: sequential, pooled)", c.Mode)
	}
	if c.Workers < 1 || c.Workers > 100 {
		return fmt.Errorf("并发数必须在1-100之间")
	}
	if c.FetchRetries < 0 {
		return fmt.Errorf("fetch_retries不能为负数")
	}
	return nil
}

// ValidateURL 种子链接必须是带主机名的HTTP(S)绝对地址
func ValidateURL(urlStr string) error {
	_, err := parseHTTPURL(urlStr)
	return err
}

// ValidateSiteRoot 站点根地址只能包含协议和主机
// 相对链接直接拼接在其后,带路径、查询或片段会产生错误的文章地址
func ValidateSiteRoot(urlStr string) error {
	u, err := parseHTTPURL(urlStr)
	if err != nil {
		return err
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("不能包含路径: %s", u.Path)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("不能包含查询参数或片段")
	}
	return nil
}

func parseHTTPURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("无效的URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL必须包含主机名")
	}
	return u, nil
}

// FetchConfig 抓取配置
type FetchConfig struct {
	Timeout     time.Duration     `mapstructure:"timeout" json:"timeout"`             // 单次请求超时
	UserAgent   string            `mapstructure:"user_agent" json:"user_agent"`       // 默认User-Agent
	Headers     map[string]string `mapstructure:"headers" json:"-"`                   // 额外请求头
	RateLimit   float64           `mapstructure:"rate_limit" json:"rate_limit"`       // 每秒请求数,0表示不限制
	MaxBodySize int               `mapstructure:"max_body_size" json:"max_body_size"` // 响应体上限(字节)
}

// FilterConfig 链接过滤配置
type FilterConfig struct {
	ArticleMarker string `mapstructure:"article_marker" json:"article_marker"` // 站内文章路径标记
	MainPage      string `mapstructure:"main_page" json:"main_page"`           // 首页标记
}
