package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/WikiCrawler/internal/core"
	"github.com/RecoveryAshes/WikiCrawler/internal/crawlers"
	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/RecoveryAshes/WikiCrawler/internal/storage"
	"github.com/RecoveryAshes/WikiCrawler/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 爬取参数
	seedURL      string
	siteRoot     string
	budget       int
	workers      int
	mode         string
	dataDir      string
	backend      string
	showProgress bool
	timeout      time.Duration
	retries      int
	skipFailed   bool
)

// appConfig 在PersistentPreRunE中加载,RunE使用
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "wikicrawler",
	Short: "可断点续爬的维基百科爬虫",
	Long: `WikiCrawler - 可断点续爬的维基百科爬虫

从种子文章开始按广度优先抓取站内文章链接,保存段落文本,
并定期把待爬/已抓取链接集合持久化,中断后可从检查点继续:
  • 顺序模式和工作池模式
  • CSV 或 SQLite 记录集存储
  • 按大小滚动的内容日志
  • 致命错误时紧急转储
  • 自定义HTTP请求头

示例:
  # 使用默认配置抓取20个链接
  wikicrawler

  # 从指定种子开始,使用8个工作协程抓取1000个链接
  wikicrawler --seed https://en.wikipedia.org/wiki/Ontario --budget 1000 --mode pooled --workers 8

  # 自定义请求头
  wikicrawler -H "User-Agent: MyBot/1.0 (me@example.com)"

  # 验证配置
  wikicrawler --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		config.MergeCLIFlags(core.CLIOverrides{
			SeedURL:  seedURL,
			SiteRoot: siteRoot,
			MaxLinks: budget,
			Workers:  workers,
			Mode:     mode,
			DataDir:  dataDir,
			Backend:  backend,
			LogLevel: logLevel,
			Timeout:  timeout,
			Retries:  retries,
			SkipFail: skipFailed,
		})
		if verbose && logLevel == "" {
			config.Logging.Level = "debug"
		}

		if err := utils.InitLogger(config.Logging); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if config.ConfigFile != "" {
			utils.Infof("使用配置文件: %s", config.ConfigFile)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateFlags(mode, backend, workers); err != nil {
			return err
		}

		headerManager, err := core.NewHeaderManager(appConfig.Fetch.UserAgent, appConfig.Fetch.Headers, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		if validateConfig {
			return printValidatedConfig(appConfig, headerManager)
		}

		if err := appConfig.Validate(); err != nil {
			return err
		}
		if _, err := headerManager.GetHeaders(); err != nil {
			return fmt.Errorf("HTTP头部验证失败: %w", err)
		}

		// Ctrl+C 进入Draining,保存状态后退出
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, appConfig, headerManager)
	},
}

// run 组装存储、内容日志和引擎并执行一次爬取
func run(ctx context.Context, cfg *core.Config, headerManager *core.HeaderManager) error {
	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("打开记录集存储失败: %w", err)
	}
	defer store.Close()

	contentLog, err := storage.NewContentLog(storage.ContentLogConfig{
		Dir:        cfg.Storage.DataDir,
		FileName:   cfg.Content.FileName,
		MaxSizeMB:  cfg.Content.MaxSizeMB,
		MaxBackups: cfg.Content.MaxBackups,
		Compress:   cfg.Content.Compress,
	})
	if err != nil {
		return fmt.Errorf("打开内容日志失败: %w", err)
	}
	defer contentLog.Close()

	monitor := crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{})
	monitor.StartMonitoring(5 * time.Second)
	defer monitor.StopMonitoring()

	opts := []core.Option{core.WithResourceMonitor(monitor)}
	if cfg.Report.Enabled {
		opts = append(opts, core.WithReporter(utils.NewReporter(cfg.Report.Dir)))
	}
	if showProgress {
		bar := utils.NewProgressBar(cfg.Crawl.MaxLinks+1, "抓取中")
		defer bar.Finish()
		opts = append(opts, core.WithProgress(func(stats models.CrawlStats) {
			_ = bar.Set(stats.Visited)
		}))
	}

	engine, err := core.NewEngine(cfg, store, contentLog, core.NewSessionFactory(cfg, headerManager), opts...)
	if err != nil {
		return err
	}

	utils.Logger.Info().
		Str("seed", cfg.Crawl.SeedURL).
		Str("data_dir", cfg.Storage.DataDir).
		Str("content_log", contentLog.Path()).
		Str("headers", headerManager.SafeHeadersString()).
		Msg("配置就绪")

	start := time.Now()
	if err := engine.Run(ctx); err != nil {
		return err
	}

	stats := engine.Stats()
	fmt.Println("\n==================================================")
	fmt.Println("📊 爬取统计")
	fmt.Println("==================================================")
	fmt.Printf("✅ 已抓取链接: %d\n", stats.Visited)
	fmt.Printf("✅ 待爬链接: %d\n", stats.Frontier)
	fmt.Printf("✅ 本次抓取页面: %d\n", stats.Fetched)
	fmt.Printf("✅ 新发现链接: %d\n", stats.Discovered)
	fmt.Printf("✅ 写出文本块: %d\n", stats.ContentBlocks)
	fmt.Printf("❌ 失败页面: %d\n", stats.Failed)
	fmt.Printf("⏱️  总耗时: %s\n", utils.FormatDuration(time.Since(start)))
	fmt.Println("==================================================")

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	// 不需要配置和日志
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("WikiCrawler %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证配置并显示生效的设置")

	// 爬取参数,零值表示使用配置文件
	rootCmd.Flags().StringVarP(&seedURL, "seed", "s", "", "种子文章URL,仅在没有检查点时使用")
	rootCmd.Flags().StringVar(&siteRoot, "site-root", "", "站点根地址,用于拼接相对链接")
	rootCmd.Flags().IntVarP(&budget, "budget", "n", 0, "已抓取链接数预算 (max_links)")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "工作池宽度 (1-100)")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "执行模式 (sequential|pooled)")
	rootCmd.Flags().StringVarP(&dataDir, "data-dir", "o", "", "记录集和内容日志目录")
	rootCmd.Flags().StringVar(&backend, "backend", "", "记录集存储后端 (csv|sqlite)")
	rootCmd.Flags().BoolVar(&showProgress, "progress", false, "显示进度条")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "单次请求超时,如 30s")
	rootCmd.Flags().IntVar(&retries, "retries", 0, "临时错误重试次数")
	rootCmd.Flags().BoolVar(&skipFailed, "skip-failed", false, "永久失败的链接跳过而不终止爬取")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if appConfig != nil {
			utils.Logger.Error().Err(err).Msg("run failed")
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
