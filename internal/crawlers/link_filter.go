package crawlers

import (
	"strings"

	"github.com/RecoveryAshes/WikiCrawler/internal/models"
)

const (
	// DefaultArticleMarker 站内文章路径标记
	DefaultArticleMarker = "/wiki/"

	// DefaultMainPage 首页标记
	DefaultMainPage = "Main_Page"
)

// LinkFilter 判断href是否为可跟随的站内文章链接
type LinkFilter struct {
	articleMarker string
	mainPage      string
}

// NewLinkFilter 创建链接过滤器,空字段使用默认值
func NewLinkFilter(cfg models.FilterConfig) *LinkFilter {
	f := &LinkFilter{
		articleMarker: cfg.ArticleMarker,
		mainPage:      cfg.MainPage,
	}
	if f.articleMarker == "" {
		f.articleMarker = DefaultArticleMarker
	}
	if f.mainPage == "" {
		f.mainPage = DefaultMainPage
	}
	return f
}

// IsFollowable 同时满足以下条件时返回true:
//   - 包含文章路径标记
//   - 不含命名空间冒号(":")
//   - 不含协议相对标记("//")
//   - 不指向首页
func (f *LinkFilter) IsFollowable(href string) bool {
	ok, _ := f.Check(href)
	return ok
}

// Check 与IsFollowable相同,额外返回拒绝原因(用于调试日志)
func (f *LinkFilter) Check(href string) (bool, string) {
	switch {
	case !strings.Contains(href, f.articleMarker):
		return false, "缺少文章路径标记"
	case strings.Contains(href, ":"):
		return false, "命名空间链接"
	case strings.Contains(href, "//"):
		return false, "协议相对或外部链接"
	case strings.Contains(href, f.mainPage):
		return false, "首页链接"
	}
	return true, ""
}

var defaultFilter = NewLinkFilter(models.FilterConfig{})

// IsFollowable 使用默认规则判断href
func IsFollowable(href string) bool {
	return defaultFilter.IsFollowable(href)
}
