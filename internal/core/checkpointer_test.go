package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/RecoveryAshes/WikiCrawler/internal/crawlers"
	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/RecoveryAshes/WikiCrawler/internal/storage"
)

// memoryStore 内存记录集存储,统计每个记录集的保存次数
type memoryStore struct {
	mu    sync.Mutex
	sets  map[string][]string
	saves map[string]int
	err   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sets: make(map[string][]string), saves: make(map[string]int)}
}

func (m *memoryStore) Exists(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sets[name]
	return ok, nil
}

func (m *memoryStore) Load(name string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sets[name]...), nil
}

func (m *memoryStore) Save(name string, records []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sets[name] = append([]string(nil), records...)
	m.saves[name]++
	return nil
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) saveCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[name]
}

func newTestCheckpointer(t *testing.T, store storage.RecordStore, sink ContentSink, pages, unique int) (*Checkpointer, *crawlState) {
	t.Helper()
	cfg := models.CrawlConfig{SeedURL: testSeed, PagesInMemory: pages, UniqueLinksInMemory: unique}
	c := NewCheckpointer(store, sink, t.TempDir(), "run-test", cfg)

	st := newCrawlState(crawlers.NewFrontierStore(nil, nil))
	st.afterCommit = c.afterCommit
	c.Restore(nil, 0)
	return c, st
}

func candidates(prefix string, n int) *models.Extraction {
	ex := &models.Extraction{Paragraphs: []string{prefix}}
	for i := 0; i < n; i++ {
		ex.Candidates = append(ex.Candidates, fmt.Sprintf("/wiki/%s_%d", prefix, i))
	}
	return ex
}

func TestCheckpointer_VisitedCadence(t *testing.T) {
	store := newMemoryStore()
	sink := &memorySink{}
	_, st := newTestCheckpointer(t, store, sink, 2, 1000)

	for i := 0; i < 5; i++ {
		st.commit(fmt.Sprintf("/wiki/P%d", i), candidates(fmt.Sprintf("P%d", i), 0))
	}

	if got := store.saveCount(storage.VisitedSetName); got != 2 {
		t.Errorf("5个链接、步长2时应保存2次已抓取集合, 实际%d", got)
	}
	if want := []string{"/wiki/P0", "/wiki/P1", "/wiki/P2", "/wiki/P3"}; !reflect.DeepEqual(store.sets[storage.VisitedSetName], want) {
		t.Errorf("已抓取集合内容错误: %v", store.sets[storage.VisitedSetName])
	}
	if sink.appends != 2 || st.buffer.Len() != 1 {
		t.Errorf("内容写出次数或剩余缓冲错误: %d %d", sink.appends, st.buffer.Len())
	}
}

func TestCheckpointer_FrontierBucket(t *testing.T) {
	store := newMemoryStore()
	_, st := newTestCheckpointer(t, store, &memorySink{}, 1000, 5)

	steps := []struct {
		name      string
		action    func()
		wantSaves int
	}{
		{"增长到6进入档位1", func() { st.commit("/wiki/A", candidates("A", 6)) }, 1},
		{"增长到9仍在档位1", func() { st.commit("/wiki/B", candidates("B", 3)) }, 1},
		{"增长到11进入档位2", func() { st.commit("/wiki/C", candidates("C", 2)) }, 2},
		{"弹出后回落到档位1", func() {
			for i := 0; i < 6; i++ {
				link, _ := st.frontier.PopNext()
				st.commit(link, nil)
			}
		}, 2},
		{"再次增长到档位2时保存", func() { st.commit("/wiki/D", candidates("D", 5)) }, 3},
	}

	for _, step := range steps {
		step.action()
		if got := store.saveCount(storage.FrontierSetName); got != step.wantSaves {
			t.Fatalf("%s: 期望保存%d次, 实际%d (待爬 %d)", step.name, step.wantSaves, got, st.frontier.FrontierLen())
		}
	}
}

func TestCheckpointer_SaveFailureCounted(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("只读文件系统")
	_, st := newTestCheckpointer(t, store, &memorySink{}, 1, 1000)

	stats := st.commit("/wiki/A", candidates("A", 1))
	if stats.CheckpointErrs != 1 {
		t.Errorf("保存失败应计数, 实际%d", stats.CheckpointErrs)
	}
	if stats.Visited != 1 {
		t.Errorf("保存失败不应中断合并, 实际已抓取%d", stats.Visited)
	}
}

func TestCheckpointer_Shutdown(t *testing.T) {
	store := newMemoryStore()
	sink := &memorySink{}
	c, st := newTestCheckpointer(t, store, sink, 100, 1000)

	st.commit("/wiki/A", candidates("A", 2))
	if err := c.Shutdown(st); err != nil {
		t.Fatalf("关闭持久化失败: %v", err)
	}

	if !reflect.DeepEqual(store.sets[storage.FrontierSetName], []string{"/wiki/A_0", "/wiki/A_1"}) {
		t.Errorf("待爬集合错误: %v", store.sets[storage.FrontierSetName])
	}
	if !reflect.DeepEqual(store.sets[storage.VisitedSetName], []string{"/wiki/A"}) {
		t.Errorf("已抓取集合错误: %v", store.sets[storage.VisitedSetName])
	}
	if len(sink.blocks) != 1 || st.buffer.Len() != 0 {
		t.Errorf("关闭时应写出全部文本: %v", sink.blocks)
	}

	manifest, err := models.LoadCheckpointFromFile(c.manifestPath)
	if err != nil {
		t.Fatalf("读取清单失败: %v", err)
	}
	if manifest.RunID != "run-test" || manifest.Frontier != 2 || manifest.Visited != 1 || manifest.Emergency {
		t.Errorf("清单内容错误: %+v", manifest)
	}
}

func TestRecoveryHandler_Load(t *testing.T) {
	tests := []struct {
		name        string
		sets        map[string][]string
		wantResumed bool
	}{
		{"没有记录集", nil, false},
		{"只有待爬集合", map[string][]string{storage.FrontierSetName: {"/wiki/A"}}, false},
		{"两个集合都为空", map[string][]string{storage.FrontierSetName: {}, storage.VisitedSetName: {}}, false},
		{"完整检查点", map[string][]string{storage.FrontierSetName: {"/wiki/A"}, storage.VisitedSetName: {"/wiki/B"}}, true},
		{"待爬为空但已抓取非空", map[string][]string{storage.FrontierSetName: {}, storage.VisitedSetName: {"/wiki/B"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			for name, links := range tt.sets {
				_ = store.Save(name, links)
			}
			c, _ := newTestCheckpointer(t, store, &memorySink{}, 10, 10)

			state, err := NewRecoveryHandler(store, c).Load()
			if err != nil {
				t.Fatalf("加载失败: %v", err)
			}
			if state.Resumed != tt.wantResumed {
				t.Errorf("Resumed = %v, 期望 %v", state.Resumed, tt.wantResumed)
			}
		})
	}
}

func TestRecoveryHandler_DumpEmptySkipped(t *testing.T) {
	store := newMemoryStore()
	c, _ := newTestCheckpointer(t, store, &memorySink{}, 10, 10)

	if err := NewRecoveryHandler(store, c).Dump(crawlSnapshot{}); err != nil {
		t.Fatalf("空状态转储不应失败: %v", err)
	}
	if len(store.saves) != 0 {
		t.Errorf("空状态不应写出记录集: %v", store.saves)
	}
}

func TestRecoveryHandler_DumpJoinsErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("磁盘已满")
	sink := &memorySink{err: errors.New("磁盘已满")}
	c, _ := newTestCheckpointer(t, store, sink, 10, 10)

	err := NewRecoveryHandler(store, c).Dump(crawlSnapshot{
		frontier: []string{"/wiki/A"},
		visited:  []string{"/wiki/B"},
		blocks:   []models.ContentBlock{{Link: "/wiki/B", Text: "text"}},
	})

	var pe *models.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("期望PersistenceError, 实际: %v", err)
	}
	if n := strings.Count(err.Error(), "持久化失败"); n != 3 {
		t.Errorf("三项写出都应尝试并报告, 实际%d项: %v", n, err)
	}
}
