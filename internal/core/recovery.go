package core

import (
	"errors"
	"os"

	"github.com/RecoveryAshes/WikiCrawler/internal/crawlers"
	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/RecoveryAshes/WikiCrawler/internal/storage"
	"github.com/RecoveryAshes/WikiCrawler/internal/utils"
)

// RecoveredState 启动时加载的状态
type RecoveredState struct {
	Frontier []string
	Visited  []string

	// Resumed 为true表示从检查点继续,否则从种子链接开始
	Resumed bool

	// Manifest 上次运行的清单,可能为nil
	Manifest *models.Checkpoint
}

// RecoveryHandler 启动时加载检查点,致命错误时紧急转储
type RecoveryHandler struct {
	store        storage.RecordStore
	checkpointer *Checkpointer
}

// NewRecoveryHandler 创建恢复处理器
func NewRecoveryHandler(store storage.RecordStore, checkpointer *Checkpointer) *RecoveryHandler {
	return &RecoveryHandler{store: store, checkpointer: checkpointer}
}

// Load 两个记录集都存在且不同时为空时恢复,否则返回空状态
func (r *RecoveryHandler) Load() (*RecoveredState, error) {
	state := &RecoveredState{}

	frontierExists, err := r.store.Exists(storage.FrontierSetName)
	if err != nil {
		return nil, &models.PersistenceError{Op: "load", Name: storage.FrontierSetName, Err: err}
	}
	visitedExists, err := r.store.Exists(storage.VisitedSetName)
	if err != nil {
		return nil, &models.PersistenceError{Op: "load", Name: storage.VisitedSetName, Err: err}
	}

	if !frontierExists || !visitedExists {
		utils.Infof("未找到完整的检查点 (%s=%v, %s=%v),从种子链接开始",
			storage.FrontierSetName, frontierExists, storage.VisitedSetName, visitedExists)
		return state, nil
	}

	if state.Frontier, err = r.store.Load(storage.FrontierSetName); err != nil {
		return nil, &models.PersistenceError{Op: "load", Name: storage.FrontierSetName, Err: err}
	}
	if state.Visited, err = r.store.Load(storage.VisitedSetName); err != nil {
		return nil, &models.PersistenceError{Op: "load", Name: storage.VisitedSetName, Err: err}
	}

	if len(state.Frontier) == 0 && len(state.Visited) == 0 {
		utils.Info("检查点为空,从种子链接开始")
		return state, nil
	}

	manifest, err := models.LoadCheckpointFromFile(r.checkpointer.manifestPath)
	switch {
	case err == nil:
		state.Manifest = manifest
		if manifest.Emergency {
			utils.Warnf("上次运行(%s)以紧急转储结束", manifest.RunID)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		utils.Warnf("读取检查点清单失败: %v", err)
	}

	state.Resumed = true
	utils.Infof("从检查点恢复: 待爬 %d, 已抓取 %d", len(state.Frontier), len(state.Visited))
	return state, nil
}

// Dump 尽力持久化全部状态,错误合并返回,不重试
// 状态为空(引导阶段尚未产生任何状态)时跳过
func (r *RecoveryHandler) Dump(snap crawlSnapshot) error {
	if snap.empty() {
		utils.Warn("没有可转储的状态,跳过紧急转储")
		return nil
	}

	utils.Warnf("紧急转储: 待爬 %d, 已抓取 %d, 文本块 %d", len(snap.frontier), len(snap.visited), len(snap.blocks))

	var stats models.CrawlStats
	var errs []error

	if len(snap.blocks) > 0 {
		buffer := crawlers.NewContentBuffer()
		for _, block := range snap.blocks {
			buffer.Append(block.Link, []string{block.Text})
		}
		if err := r.checkpointer.FlushContent(buffer, &stats); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.checkpointer.SaveFrontier(snap.frontier, &stats); err != nil {
		errs = append(errs, err)
	}
	if err := r.checkpointer.SaveVisited(snap.visited, &stats); err != nil {
		errs = append(errs, err)
	}
	r.checkpointer.writeManifestCounts(len(snap.frontier), len(snap.visited), models.StateStopped, true)

	err := errors.Join(errs...)
	if err != nil {
		utils.Error(err, "紧急转储未完全成功")
	}
	return err
}
