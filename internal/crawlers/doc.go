// Package crawlers 提供维基百科爬取的基础组件
//
// # 核心组件
//
// ## FrontierStore
//
// 待爬集合和已抓取集合。待爬链接按插入顺序弹出,两个集合始终不相交。
// 本身不加锁,由引擎的状态锁保护。
//
//	fs := NewFrontierStore(frontier, visited)
//	fs.AddCandidate("/wiki/Canada")
//	link, err := fs.PopNext()
//	fs.MarkVisited(link)
//
// ## LinkFilter
//
// 判断href是否为可跟随的文章链接。依次检查:
//   - 必须包含"/wiki/"
//   - 不能包含":"(命名空间页面,如File:、Help:)
//   - 不能包含"//"(外部或协议相对链接)
//   - 不能指向Main_Page
//
// ## PageExtractor
//
// 基于goquery,按文档顺序提取<a href>候选链接和每个<p>的文本。
//
// ## Session
//
// 基于Colly的抓取会话。每个工作协程持有独立会话和独立连接池,
// 非2xx响应、网络错误和超时都以*models.FetchError返回。
//
//	s := NewSession(SessionOptions{SiteRoot: "https://en.wikipedia.org", Fetch: cfg})
//	defer s.Close()
//	page, err := s.Fetch(ctx, "/wiki/Canada")
//
// ## ContentBuffer
//
// 尚未写出的段落文本,写出成功后清空。
//
// ## ResourceMonitor
//
// 采样内存和CPU,用于限制工作池宽度和输出进度日志。
package crawlers
