package models

import "time"

// Page 抓取到的原始页面
type Page struct {
	Link        string    // 抓取时使用的链接
	URL         string    // 实际请求的URL
	StatusCode  int       // HTTP状态码
	ContentType string    // Content-Type
	Body        []byte    // 解码后的响应体
	FetchedAt   time.Time // 抓取时间
}

// ContentBlock 一个段落的文本
type ContentBlock struct {
	Link string // 来源页面
	Text string // 段落文本,可能为空
}

// Extraction 单个页面的提取结果
type Extraction struct {
	// Candidates 通过过滤规则的链接,按文档顺序
	Candidates []string

	// Paragraphs 段落文本,按文档顺序,空段落保留
	Paragraphs []string

	// Anchors 页面中带href的锚点总数
	Anchors int
}
