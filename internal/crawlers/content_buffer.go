package crawlers

import "github.com/RecoveryAshes/WikiCrawler/internal/models"

// ContentBuffer 待写出的段落文本
// 只追加,写出成功后由检查点清空
type ContentBuffer struct {
	blocks []models.ContentBlock
}

// NewContentBuffer 创建空缓冲区
func NewContentBuffer() *ContentBuffer {
	return &ContentBuffer{}
}

// Append 按文档顺序追加一个页面的全部段落,空段落同样保留
func (b *ContentBuffer) Append(link string, paragraphs []string) {
	for _, text := range paragraphs {
		b.blocks = append(b.blocks, models.ContentBlock{Link: link, Text: text})
	}
}

// Blocks 返回当前内容的副本
func (b *ContentBuffer) Blocks() []models.ContentBlock {
	out := make([]models.ContentBlock, len(b.blocks))
	copy(out, b.blocks)
	return out
}

// Len 文本块数量
func (b *ContentBuffer) Len() int {
	return len(b.blocks)
}

// Clear 清空缓冲区
func (b *ContentBuffer) Clear() {
	b.blocks = nil
}
