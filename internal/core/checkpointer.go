package core

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/WikiCrawler/internal/crawlers"
	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/RecoveryAshes/WikiCrawler/internal/storage"
	"github.com/RecoveryAshes/WikiCrawler/internal/utils"
)

// ContentSink 段落文本的写出目标
type ContentSink interface {
	Append(blocks []models.ContentBlock) error
}

// Checkpointer 按阈值和在关闭时持久化爬取状态
// 所有方法都在引擎状态锁内调用,因此是唯一的写者
type Checkpointer struct {
	store        storage.RecordStore
	content      ContentSink
	manifestPath string

	pagesInMemory       int
	uniqueLinksInMemory int

	// 上次持久化待爬集合时的规模档位 (frontierLen / uniqueLinksInMemory)
	frontierBucket int

	manifest models.Checkpoint
}

// NewCheckpointer 创建检查点管理器
func NewCheckpointer(store storage.RecordStore, content ContentSink, dataDir string, runID string, cfg models.CrawlConfig) *Checkpointer {
	now := time.Now()
	return &Checkpointer{
		store:               store,
		content:             content,
		manifestPath:        filepath.Join(dataDir, models.CheckpointManifestFile),
		pagesInMemory:       cfg.PagesInMemory,
		uniqueLinksInMemory: cfg.UniqueLinksInMemory,
		manifest: models.Checkpoint{
			RunID:       runID,
			SeedURL:     cfg.SeedURL,
			FrontierSet: storage.FrontierSetName,
			VisitedSet:  storage.VisitedSetName,
			CreatedAt:   now,
		},
	}
}

// Restore 沿用已有清单的创建时间和待爬规模档位
func (c *Checkpointer) Restore(prev *models.Checkpoint, frontierLen int) {
	if prev != nil && !prev.CreatedAt.IsZero() {
		c.manifest.CreatedAt = prev.CreatedAt
	}
	c.frontierBucket = frontierLen / c.uniqueLinksInMemory
}

// afterCommit 每合并一个链接后检查阈值
func (c *Checkpointer) afterCommit(st *crawlState) {
	visited := st.frontier.VisitedLen()

	if visited%c.pagesInMemory == 0 {
		if err := c.FlushContent(st.buffer, &st.stats); err != nil {
			st.stats.CheckpointErrs++
			utils.Error(err, "写出内容失败,保留内存中的文本")
		}
		if err := c.SaveVisited(st.frontier.VisitedLinks(), &st.stats); err != nil {
			utils.Error(err, "保存已抓取集合失败,继续爬取")
		}
		c.writeManifest(st.frontier, models.StateRunning, false)
	}

	bucket := st.frontier.FrontierLen() / c.uniqueLinksInMemory
	switch {
	case bucket > c.frontierBucket:
		if err := c.SaveFrontier(st.frontier.FrontierLinks(), &st.stats); err != nil {
			utils.Error(err, "保存待爬集合失败,继续爬取")
			return
		}
		c.frontierBucket = bucket
		c.writeManifest(st.frontier, models.StateRunning, false)
	case bucket < c.frontierBucket:
		c.frontierBucket = bucket
	}
}

// FlushContent 写出缓冲区,成功后清空
func (c *Checkpointer) FlushContent(buffer *crawlers.ContentBuffer, stats *models.CrawlStats) error {
	if buffer.Len() == 0 {
		return nil
	}

	blocks := buffer.Blocks()
	if err := c.content.Append(blocks); err != nil {
		return &models.PersistenceError{Op: "flush", Name: "content", Err: err}
	}
	buffer.Clear()
	stats.ContentBlocks += len(blocks)

	utils.Infof("内容已写出: %d 个文本块", len(blocks))
	return nil
}

// SaveVisited 持久化已抓取集合
func (c *Checkpointer) SaveVisited(links []string, stats *models.CrawlStats) error {
	return c.save(storage.VisitedSetName, links, stats)
}

// SaveFrontier 持久化待爬集合
func (c *Checkpointer) SaveFrontier(links []string, stats *models.CrawlStats) error {
	return c.save(storage.FrontierSetName, links, stats)
}

func (c *Checkpointer) save(name string, links []string, stats *models.CrawlStats) error {
	if err := c.store.Save(name, links); err != nil {
		stats.CheckpointErrs++
		return &models.PersistenceError{Op: "save", Name: name, Err: err}
	}
	stats.Checkpoints++
	utils.Infof("%d 个链接已保存到记录集 %s", len(links), name)
	return nil
}

// Shutdown 正常结束时无条件写出全部状态
func (c *Checkpointer) Shutdown(st *crawlState) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	var errs []error
	if err := c.FlushContent(st.buffer, &st.stats); err != nil {
		st.stats.CheckpointErrs++
		errs = append(errs, err)
	}
	if err := c.SaveFrontier(st.frontier.FrontierLinks(), &st.stats); err != nil {
		errs = append(errs, err)
	}
	if err := c.SaveVisited(st.frontier.VisitedLinks(), &st.stats); err != nil {
		errs = append(errs, err)
	}
	c.writeManifest(st.frontier, models.StateDraining, false)

	return errors.Join(errs...)
}

// writeManifest 更新checkpoint.json,失败只记录日志
func (c *Checkpointer) writeManifest(frontier *crawlers.FrontierStore, state models.EngineState, emergency bool) {
	c.writeManifestCounts(frontier.FrontierLen(), frontier.VisitedLen(), state, emergency)
}

func (c *Checkpointer) writeManifestCounts(frontierLen, visitedLen int, state models.EngineState, emergency bool) {
	c.manifest.Frontier = frontierLen
	c.manifest.Visited = visitedLen
	c.manifest.State = state
	c.manifest.Emergency = emergency
	c.manifest.UpdatedAt = time.Now()

	if err := c.manifest.SaveToFile(c.manifestPath); err != nil {
		utils.Warnf("写入检查点清单失败: %v", err)
	}
}
