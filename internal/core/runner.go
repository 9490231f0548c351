package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/RecoveryAshes/WikiCrawler/internal/crawlers"
	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/RecoveryAshes/WikiCrawler/internal/utils"
	"golang.org/x/sync/errgroup"
)

// FetcherFactory 为每个工作协程创建独立的抓取器
type FetcherFactory func() crawlers.PageFetcher

// NewSessionFactory 基于配置创建Colly会话工厂,所有会话共享同一个限速器
func NewSessionFactory(cfg *Config, headers models.HeaderProvider) FetcherFactory {
	limiter := crawlers.NewLimiter(cfg.Fetch.RateLimit)
	return func() crawlers.PageFetcher {
		return crawlers.NewSession(crawlers.SessionOptions{
			SiteRoot:       cfg.Crawl.SiteRoot,
			Fetch:          cfg.Fetch,
			HeaderProvider: headers,
			Limiter:        limiter,
		})
	}
}

// Runner 运行阶段的执行策略
type Runner interface {
	Run(ctx context.Context, e *Engine) error
}

// newRunner 按模式选择执行策略
func newRunner(mode models.CrawlMode, workers int) (Runner, error) {
	switch mode {
	case models.ModeSequential, "":
		return sequentialRunner{}, nil
	case models.ModePooled:
		return pooledRunner{workers: workers}, nil
	default:
		return nil, fmt.Errorf("无效的执行模式: %s", mode)
	}
}

// sequentialRunner 单会话顺序抓取
type sequentialRunner struct{}

func (sequentialRunner) Run(ctx context.Context, e *Engine) error {
	fetcher := e.newFetcher()
	defer fetcher.Close()

	return e.work(ctx, fetcher, false)
}

// pooledRunner 固定宽度的工作池
// 每个工作协程持有自己的会话,共享状态由引擎锁保护
type pooledRunner struct {
	workers int
}

func (r pooledRunner) Run(ctx context.Context, e *Engine) error {
	g, gctx := errgroup.WithContext(ctx)

	stop := e.state.wakeOnDone(gctx)
	defer stop()

	utils.Infof("启动工作池: %d 个工作协程", r.workers)
	for i := 0; i < r.workers; i++ {
		g.Go(func() error {
			fetcher := e.newFetcher()
			defer fetcher.Close()

			return e.work(gctx, fetcher, true)
		})
	}

	return g.Wait()
}

// work 工作循环: 取链接 → 抓取 → 提取 → 合并
// 返回nil表示正常结束(预算用完、待爬为空或上下文取消)
func (e *Engine) work(ctx context.Context, fetcher crawlers.PageFetcher, wait bool) (err error) {
	var current string
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("工作协程panic: %v\n%s", r, debug.Stack())
			if current != "" {
				e.state.abandon(current)
			}
			e.state.halt()
		}
	}()

	for {
		link, ok := e.state.acquire(ctx, e.cfg.Crawl.MaxLinks, wait)
		if !ok {
			return nil
		}
		current = link

		if err := e.process(ctx, fetcher, link); err != nil {
			if errors.Is(err, errAbandoned) {
				return nil
			}
			return err
		}
		current = ""
	}
}

// errAbandoned 上下文取消导致在途链接被放回
var errAbandoned = errors.New("在途链接已放回")

// process 处理单个已登记为在途的链接
// 失败时按策略放回/丢弃/跳过,返回的错误为致命错误
func (e *Engine) process(ctx context.Context, fetcher crawlers.PageFetcher, link string) error {
	page, err := e.fetchWithRetry(ctx, fetcher, link)
	if err == nil {
		var extraction *models.Extraction
		extraction, err = e.extractor.Extract(page)
		if err == nil {
			stats := e.state.commit(link, extraction)
			e.notify(stats)
			return nil
		}
	}

	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		e.state.abandon(link)
		return errAbandoned
	}

	if e.state.fail(link, err, e.cfg.Crawl.SkipFailedLinks) {
		utils.Logger.Warn().Err(err).Str("link", link).Msg("跳过失败链接")
		e.notify(e.state.Stats())
		return nil
	}

	utils.Logger.Error().Err(err).Str("link", link).Msg("抓取失败,停止爬取")
	return err
}

// fetchWithRetry 对临时错误按线性退避重试
func (e *Engine) fetchWithRetry(ctx context.Context, fetcher crawlers.PageFetcher, link string) (*models.Page, error) {
	retries := e.cfg.Crawl.FetchRetries

	for attempt := 0; ; attempt++ {
		page, err := fetcher.Fetch(ctx, link)
		if err == nil {
			return page, nil
		}

		fe, ok := models.IsFetchError(err)
		if !ok || !fe.Temporary() || attempt >= retries {
			return nil, err
		}

		backoff := e.cfg.Crawl.RetryBackoff * time.Duration(attempt+1)
		utils.Warnf("抓取失败,%s后重试 (%d/%d): %v", backoff, attempt+1, retries, err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
