package crawlers

import (
	"github.com/RecoveryAshes/WikiCrawler/internal/models"
)

// FrontierStore 待爬/已抓取链接管理器
// 职责:
//   - 待爬集合按插入顺序(FIFO)弹出,保证恢复和测试可复现
//   - 已抓取集合保留抓取顺序
//   - 保证两个集合不相交
//
// 注意: FrontierStore本身不加锁,并发访问由引擎的状态锁保护
type FrontierStore struct {
	// 待爬队列,head之前的元素已弹出
	queue []string
	head  int

	// 待爬集合成员,queue中不在pending里的元素是已失效的占位
	pending map[string]struct{}

	// 已抓取链接,按抓取顺序
	visited    []string
	visitedSet map[string]struct{}
}

// NewFrontierStore 创建链接管理器,可选地从检查点恢复
// 已出现在visited中的frontier链接会被丢弃
func NewFrontierStore(frontier, visited []string) *FrontierStore {
	fs := &FrontierStore{
		queue:      make([]string, 0, len(frontier)),
		pending:    make(map[string]struct{}, len(frontier)),
		visited:    make([]string, 0, len(visited)),
		visitedSet: make(map[string]struct{}, len(visited)),
	}

	for _, link := range visited {
		fs.MarkVisited(link)
	}
	for _, link := range frontier {
		fs.AddCandidate(link)
	}

	return fs
}

// AddCandidate 加入待爬集合
// 仅当链接既未抓取也未在待爬集合中时插入,返回是否插入
func (fs *FrontierStore) AddCandidate(link string) bool {
	if _, ok := fs.visitedSet[link]; ok {
		return false
	}
	if _, ok := fs.pending[link]; ok {
		return false
	}

	fs.pending[link] = struct{}{}
	fs.queue = append(fs.queue, link)
	return true
}

// PopNext 按FIFO顺序取出下一个待爬链接
func (fs *FrontierStore) PopNext() (string, error) {
	for fs.head < len(fs.queue) {
		link := fs.queue[fs.head]
		fs.queue[fs.head] = ""
		fs.head++

		if _, ok := fs.pending[link]; ok {
			delete(fs.pending, link)
			fs.compact()
			return link, nil
		}
	}

	fs.compact()
	return "", models.ErrFrontierEmpty
}

// MarkVisited 标记为已抓取
// 若链接仍在待爬集合中则一并移除,重复调用无副作用
func (fs *FrontierStore) MarkVisited(link string) {
	delete(fs.pending, link)

	if _, ok := fs.visitedSet[link]; ok {
		return
	}
	fs.visitedSet[link] = struct{}{}
	fs.visited = append(fs.visited, link)
}

// Requeue 将弹出后未完成的链接放回队首
func (fs *FrontierStore) Requeue(link string) bool {
	if _, ok := fs.visitedSet[link]; ok {
		return false
	}
	if _, ok := fs.pending[link]; ok {
		return false
	}

	fs.pending[link] = struct{}{}
	if fs.head > 0 {
		fs.head--
		fs.queue[fs.head] = link
		return true
	}
	fs.queue = append([]string{link}, fs.queue...)
	return true
}

// IsVisited 检查链接是否已抓取
func (fs *FrontierStore) IsVisited(link string) bool {
	_, ok := fs.visitedSet[link]
	return ok
}

// InFrontier 检查链接是否在待爬集合中
func (fs *FrontierStore) InFrontier(link string) bool {
	_, ok := fs.pending[link]
	return ok
}

// FrontierLen 待爬链接数
func (fs *FrontierStore) FrontierLen() int {
	return len(fs.pending)
}

// VisitedLen 已抓取链接数
func (fs *FrontierStore) VisitedLen() int {
	return len(fs.visited)
}

// FrontierLinks 返回待爬集合快照,按弹出顺序
func (fs *FrontierStore) FrontierLinks() []string {
	links := make([]string, 0, len(fs.pending))
	seen := make(map[string]struct{}, len(fs.pending))
	for _, link := range fs.queue[fs.head:] {
		if _, ok := fs.pending[link]; !ok {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	return links
}

// VisitedLinks 返回已抓取集合快照,按抓取顺序
func (fs *FrontierStore) VisitedLinks() []string {
	links := make([]string, len(fs.visited))
	copy(links, fs.visited)
	return links
}

// compact 回收已弹出部分占用的空间
func (fs *FrontierStore) compact() {
	if fs.head == 0 {
		return
	}
	if fs.head == len(fs.queue) {
		fs.queue = fs.queue[:0]
		fs.head = 0
		return
	}
	if fs.head > 1024 && fs.head*2 > len(fs.queue) {
		n := copy(fs.queue, fs.queue[fs.head:])
		fs.queue = fs.queue[:n]
		fs.head = 0
	}
}
