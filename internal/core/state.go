package core

import (
	"context"
	"errors"
	"sync"

	"github.com/RecoveryAshes/WikiCrawler/internal/crawlers"
	"github.com/RecoveryAshes/WikiCrawler/internal/models"
)

// crawlState 引擎共享状态
// 所有字段由mu保护;抓取期间不持有锁
type crawlState struct {
	mu   sync.Mutex
	cond *sync.Cond

	frontier *crawlers.FrontierStore
	buffer   *crawlers.ContentBuffer

	// 已弹出但尚未合并结果的链接
	// 在途链接既不在待爬集合也不在已抓取集合,需单独排除
	active map[string]struct{}

	// 发生致命错误后不再分发新链接
	halted bool

	stats  models.CrawlStats
	failed []models.FailedLink

	// 每次合并后在锁内调用,用于检查点
	afterCommit func(st *crawlState)
}

// crawlSnapshot 某一时刻的状态副本
type crawlSnapshot struct {
	frontier []string
	visited  []string
	blocks   []models.ContentBlock
}

func (s crawlSnapshot) empty() bool {
	return len(s.frontier) == 0 && len(s.visited) == 0 && len(s.blocks) == 0
}

func newCrawlState(frontier *crawlers.FrontierStore) *crawlState {
	st := &crawlState{
		frontier: frontier,
		buffer:   crawlers.NewContentBuffer(),
		active:   make(map[string]struct{}),
	}
	st.cond = sync.NewCond(&st.mu)
	return st
}

// wakeOnDone 上下文取消时唤醒所有等待的工作协程
func (s *crawlState) wakeOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
}

// begin 将不经过待爬集合的链接(种子)登记为在途
func (s *crawlState) begin(link string) {
	s.mu.Lock()
	s.active[link] = struct{}{}
	s.mu.Unlock()
}

// acquire 取出下一个待抓取链接
// 分发条件: visited + inflight <= budget
// wait为true时,待爬集合为空但仍有在途抓取则等待其结果
// 返回ok=false表示本工作协程应当退出
func (s *crawlState) acquire(ctx context.Context, budget int, wait bool) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.halted || ctx.Err() != nil {
			return "", false
		}
		if s.frontier.VisitedLen()+len(s.active) > budget {
			return "", false
		}

		link, err := s.frontier.PopNext()
		if err == nil {
			s.active[link] = struct{}{}
			return link, true
		}
		if !errors.Is(err, models.ErrFrontierEmpty) || len(s.active) == 0 || !wait {
			return "", false
		}
		s.cond.Wait()
	}
}

// commit 合并一个页面的抓取结果
// extraction为nil表示跳过的失败链接,只标记为已抓取
func (s *crawlState) commit(link string, extraction *models.Extraction) models.CrawlStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitLocked(link, extraction)
	return s.statsLocked()
}

func (s *crawlState) commitLocked(link string, extraction *models.Extraction) {
	if extraction != nil {
		for _, candidate := range extraction.Candidates {
			if _, busy := s.active[candidate]; busy {
				continue
			}
			if s.frontier.AddCandidate(candidate) {
				s.stats.Discovered++
			}
		}
		s.buffer.Append(link, extraction.Paragraphs)
		s.stats.Fetched++
	}
	s.frontier.MarkVisited(link)
	delete(s.active, link)

	if s.afterCommit != nil {
		s.afterCommit(s)
	}

	s.cond.Broadcast()
}

// abandon 放弃在途链接(上下文取消),放回队首以便下次运行
func (s *crawlState) abandon(link string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, link)
	s.frontier.Requeue(link)
	s.cond.Broadcast()
}

// fail 记录失败链接
// skip为true时永久失败的链接标记为已抓取,爬取继续;否则停止分发
// 临时错误和非抓取错误的链接放回队首,永久错误的链接丢弃
func (s *crawlState) fail(link string, err error, skip bool) (continued bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := models.FailedLink{Link: link, ErrorMsg: err.Error()}
	fe, isFetch := models.IsFetchError(err)
	if isFetch {
		record.Kind = fe.Kind
		record.StatusCode = fe.StatusCode
	}
	permanent := isFetch && !fe.Temporary()
	s.stats.Failed++

	if permanent && skip {
		s.failed = append(s.failed, record)
		s.commitLocked(link, nil)
		return true
	}

	delete(s.active, link)
	if !permanent {
		record.Requeued = s.frontier.Requeue(link)
	}
	s.failed = append(s.failed, record)
	s.halted = true
	s.cond.Broadcast()
	return false
}

// halt 停止分发(工作协程panic等)
func (s *crawlState) halt() {
	s.mu.Lock()
	s.halted = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// snapshot 复制当前状态,用于紧急转储
func (s *crawlState) snapshot() crawlSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return crawlSnapshot{
		frontier: s.frontier.FrontierLinks(),
		visited:  s.frontier.VisitedLinks(),
		blocks:   s.buffer.Blocks(),
	}
}

// Stats 返回统计副本
func (s *crawlState) Stats() models.CrawlStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *crawlState) statsLocked() models.CrawlStats {
	stats := s.stats
	stats.Visited = s.frontier.VisitedLen()
	stats.Frontier = s.frontier.FrontierLen()
	stats.Buffered = s.buffer.Len()
	return stats
}

// failedLinks 返回失败链接副本
func (s *crawlState) failedLinks() []models.FailedLink {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.FailedLink, len(s.failed))
	copy(out, s.failed)
	return out
}
