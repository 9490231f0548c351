package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/RecoveryAshes/WikiCrawler/internal/crawlers"
	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/RecoveryAshes/WikiCrawler/internal/storage"
	"github.com/RecoveryAshes/WikiCrawler/internal/utils"
)

// ProgressFunc 每合并一个链接后调用,不持有引擎锁
type ProgressFunc func(stats models.CrawlStats)

// Engine 爬取引擎
// 状态: Bootstrapping → Running → Draining → Stopped
type Engine struct {
	cfg   *Config
	runID string

	store      storage.RecordStore
	newFetcher FetcherFactory
	extractor  *crawlers.PageExtractor

	checkpointer *Checkpointer
	recovery     *RecoveryHandler
	monitor      *crawlers.ResourceMonitor
	reporter     *utils.Reporter
	progress     ProgressFunc

	state *crawlState

	stateMu     sync.RWMutex
	engineState models.EngineState

	resumed   bool
	startTime time.Time
	endTime   time.Time
	workers   int
}

// Option 引擎可选项
type Option func(*Engine)

// WithProgress 设置进度回调
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithReporter 结束时写出运行报告
func WithReporter(r *utils.Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithResourceMonitor 使用资源监控器限制工作池宽度并输出内存信息
func WithResourceMonitor(m *crawlers.ResourceMonitor) Option {
	return func(e *Engine) { e.monitor = m }
}

// WithRunID 指定运行ID
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// NewEngine 创建爬取引擎
func NewEngine(cfg *Config, store storage.RecordStore, content ContentSink, newFetcher FetcherFactory, opts ...Option) (*Engine, error) {
	if err := cfg.Crawl.Validate(); err != nil {
		return nil, &models.ConfigError{FilePath: cfg.ConfigFile, Cause: err}
	}
	if store == nil || content == nil || newFetcher == nil {
		return nil, errors.New("记录集存储、内容日志和抓取器工厂都不能为空")
	}

	e := &Engine{
		cfg:         cfg,
		store:       store,
		newFetcher:  newFetcher,
		extractor:   crawlers.NewPageExtractor(crawlers.NewLinkFilter(cfg.Filter)),
		engineState: models.StateBootstrapping,
		workers:     1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = models.NewRunID()
	}

	e.checkpointer = NewCheckpointer(store, content, cfg.Storage.DataDir, e.runID, cfg.Crawl)
	e.recovery = NewRecoveryHandler(store, e.checkpointer)

	return e, nil
}

// RunID 本次运行ID
func (e *Engine) RunID() string {
	return e.runID
}

// State 当前引擎状态
func (e *Engine) State() models.EngineState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.engineState
}

func (e *Engine) setState(state models.EngineState) {
	e.stateMu.Lock()
	prev := e.engineState
	e.engineState = state
	e.stateMu.Unlock()

	utils.Logger.Info().Str("run_id", e.runID).Str("from", string(prev)).Str("to", string(state)).Msg("引擎状态变更")
}

// Stats 当前统计,引导完成前返回零值
func (e *Engine) Stats() models.CrawlStats {
	if e.state == nil {
		return models.CrawlStats{}
	}
	return e.state.Stats()
}

// Run 执行一次完整的爬取
// 上下文取消视为正常结束,进入Draining并持久化;其他错误先紧急转储再返回
func (e *Engine) Run(ctx context.Context) (err error) {
	e.startTime = time.Now()
	utils.Logger.Info().
		Str("run_id", e.runID).
		Str("mode", string(e.cfg.Crawl.Mode)).
		Int("max_links", e.cfg.Crawl.MaxLinks).
		Str("backend", e.cfg.Storage.Backend).
		Msg("🚀 开始爬取任务")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("引擎panic: %v\n%s", r, debug.Stack())
		}
		if err != nil {
			err = e.fail(err)
		}
		e.finish(err)
	}()

	if err := e.bootstrap(ctx); err != nil {
		return err
	}

	e.setState(models.StateRunning)
	runner, err := newRunner(e.cfg.Crawl.Mode, e.workerCount())
	if err != nil {
		return err
	}
	if err := runner.Run(ctx, e); err != nil {
		return err
	}

	if ctx.Err() != nil {
		utils.Warn("收到停止信号,保存状态后退出")
	} else if e.state.Stats().Frontier == 0 {
		utils.Info("待爬集合已空,爬取结束")
	}

	return e.drain()
}

// bootstrap 加载检查点,抓取第一个目标
func (e *Engine) bootstrap(ctx context.Context) error {
	e.setState(models.StateBootstrapping)

	recovered, err := e.recovery.Load()
	if err != nil {
		return err
	}
	e.resumed = recovered.Resumed
	e.state = newCrawlState(crawlers.NewFrontierStore(recovered.Frontier, recovered.Visited))
	e.state.afterCommit = e.checkpointer.afterCommit
	e.checkpointer.Restore(recovered.Manifest, e.state.frontier.FrontierLen())

	if ctx.Err() != nil {
		return nil
	}

	// 引导阶段只有一个会话
	fetcher := e.newFetcher()
	defer fetcher.Close()

	var first string
	if recovered.Resumed {
		link, ok := e.state.acquire(ctx, e.cfg.Crawl.MaxLinks, false)
		if !ok {
			utils.Info("检查点中没有可继续的链接")
			return nil
		}
		first = link
	} else {
		first = e.cfg.Crawl.SeedURL
		e.state.begin(first)
	}

	utils.Logger.Info().Str("link", first).Bool("resumed", e.resumed).Msg("抓取第一个目标")
	if err := e.process(ctx, fetcher, first); err != nil && !errors.Is(err, errAbandoned) {
		return err
	}
	return nil
}

// drain 正常结束,写出全部状态
func (e *Engine) drain() error {
	e.setState(models.StateDraining)

	if err := e.checkpointer.Shutdown(e.state); err != nil {
		utils.Error(err, "最终持久化失败")
		return err
	}
	return nil
}

// fail 致命错误路径: 紧急转储后返回原错误
func (e *Engine) fail(cause error) error {
	utils.Error(cause, "爬取失败,执行紧急转储")

	var pe *models.PersistenceError
	switch {
	case e.state == nil:
		// 加载检查点前失败,没有状态
		return cause
	case errors.As(cause, &pe) && e.State() == models.StateDraining:
		// 最终持久化已经尝试过
		return cause
	case !e.resumed && e.state.Stats().Visited == 0:
		utils.Warn("种子链接未能完成,没有可转储的状态")
		return cause
	}
	e.state.halt()

	if dumpErr := e.recovery.Dump(e.state.snapshot()); dumpErr != nil {
		return errors.Join(cause, dumpErr)
	}
	return cause
}

// finish 进入Stopped并写出报告
func (e *Engine) finish(runErr error) {
	e.endTime = time.Now()
	e.setState(models.StateStopped)

	stats := e.Stats()
	stats.Duration = e.endTime.Sub(e.startTime).Seconds()

	if e.reporter != nil {
		report := e.buildReport(stats, runErr)
		if path, err := e.reporter.GenerateReport(report); err != nil {
			utils.Warnf("生成报告失败: %v", err)
		} else {
			utils.Infof("报告已生成: %s", path)
		}
	}

	utils.Logger.Info().
		Str("run_id", e.runID).
		Int("visited", stats.Visited).
		Int("frontier", stats.Frontier).
		Int("fetched", stats.Fetched).
		Int("failed", stats.Failed).
		Msgf("✅ 爬取任务结束, 总耗时: %s", utils.FormatDuration(e.endTime.Sub(e.startTime)))
}

func (e *Engine) buildReport(stats models.CrawlStats, runErr error) *models.CrawlReport {
	report := &models.CrawlReport{
		RunID:      e.runID,
		SeedURL:    e.cfg.Crawl.SeedURL,
		Mode:       e.cfg.Crawl.Mode,
		Workers:    e.workers,
		Resumed:    e.resumed,
		StartTime:  e.startTime,
		EndTime:    e.endTime,
		Duration:   stats.Duration,
		FinalState: e.State(),
		Stats:      stats,
		Config:     e.cfg.Crawl,
	}
	if e.state != nil {
		report.FailedLinks = e.state.failedLinks()
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	return report
}

// workerCount 池化模式下根据资源状况确定宽度
func (e *Engine) workerCount() int {
	if e.cfg.Crawl.Mode != models.ModePooled {
		e.workers = 1
		return 1
	}
	e.workers = e.cfg.Crawl.Workers
	if e.monitor != nil {
		e.workers = e.monitor.CalculateMaxWorkers(e.cfg.Crawl.Workers)
		mem := e.monitor.GetMemoryStatus()
		utils.Logger.Info().
			Int("requested", e.cfg.Crawl.Workers).
			Int("workers", e.workers).
			Str("total_memory", utils.FormatBytes(mem.TotalMemory)).
			Str("pressure", mem.MemoryPressure).
			Float64("cpu", mem.CPUUsage).
			Msg("工作池宽度")
	}
	return e.workers
}

// notify 进度日志和进度回调
func (e *Engine) notify(stats models.CrawlStats) {
	every := e.cfg.Crawl.ProgressEvery
	if every > 0 && stats.Visited%every == 0 {
		event := utils.Logger.Info().
			Int("visited", stats.Visited).
			Int("frontier", stats.Frontier).
			Int("buffered", stats.Buffered)
		if e.monitor != nil {
			mem := e.monitor.GetMemoryStatus()
			event = event.
				Str("heap", utils.FormatBytes(mem.AllocatedMemory)).
				Str("sys", utils.FormatBytes(mem.SysMemory)).
				Float64("cpu", mem.CPUUsage).
				Str("pressure", mem.MemoryPressure).
				Int("goroutines", mem.Goroutines)
		}
		event.Msgf("已抓取 %d 个链接", stats.Visited)
	}

	if e.progress != nil {
		e.progress(stats)
	}
}
