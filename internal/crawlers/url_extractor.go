package crawlers

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// PageExtractor 页面提取器
// 职责: 从抓取到的页面中提取候选链接(LinkExtractor)和段落文本(ContentExtractor)
type PageExtractor struct {
	filter *LinkFilter
}

// NewPageExtractor 创建页面提取器
func NewPageExtractor(filter *LinkFilter) *PageExtractor {
	if filter == nil {
		filter = defaultFilter
	}
	return &PageExtractor{filter: filter}
}

// Extract 解析页面并提取链接和段落
func (e *PageExtractor) Extract(page *models.Page) (*models.Extraction, error) {
	doc, err := parseDocument(page)
	if err != nil {
		return nil, err
	}

	result := &models.Extraction{}
	result.Candidates, result.Anchors = e.ExtractLinks(doc, page.Link)
	result.Paragraphs = e.ExtractContent(doc)

	return result, nil
}

// ExtractLinks 按文档顺序返回通过过滤规则的href
// 只考虑带href属性的<a>元素
func (e *PageExtractor) ExtractLinks(doc *goquery.Document, source string) ([]string, int) {
	var links []string
	anchors := 0

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		anchors++

		if follow, reason := e.filter.Check(href); !follow {
			log.Trace().Str("source", source).Str("href", href).Msgf("链接已过滤: %s", reason)
			return
		}
		links = append(links, href)
	})

	return links, anchors
}

// ExtractContent 按文档顺序返回每个<p>元素的文本
func (e *PageExtractor) ExtractContent(doc *goquery.Document) []string {
	sel := doc.Find("p")
	paragraphs := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		paragraphs = append(paragraphs, s.Text())
	})
	return paragraphs
}

// parseDocument 解析HTML
// 非UTF-8编码已由Colly在响应阶段转换
func parseDocument(page *models.Page) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败 [%s]: %w", page.Link, err)
	}

	return goquery.NewDocumentFromNode(root), nil
}
