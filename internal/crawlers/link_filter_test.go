package crawlers

import (
	"testing"

	"github.com/RecoveryAshes/WikiCrawler/internal/models"
)

func TestIsFollowable(t *testing.T) {
	tests := []struct {
		name string
		href string
		want bool
	}{
		{"普通文章", "/wiki/Canada", true},
		{"带片段的文章", "/wiki/Canada#History", true},
		{"命名空间链接", "/wiki/Category:Countries", false},
		{"文件链接", "/wiki/File:Flag_of_Canada.svg", false},
		{"协议相对链接", "//upload.example/img.png", false},
		{"协议相对的站内链接", "//en.wikipedia.org/wiki/Canada", false},
		{"首页", "/wiki/Main_Page", false},
		{"缺少文章标记", "/other/Canada", false},
		{"绝对外部链接", "https://example.com/page", false},
		{"空href", "", false},
		{"编辑链接", "/w/index.php?title=Canada&action=edit", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFollowable(tt.href); got != tt.want {
				t.Errorf("IsFollowable(%q) = %v, 期望 %v", tt.href, got, tt.want)
			}
		})
	}
}

func TestLinkFilter_Custom(t *testing.T) {
	f := NewLinkFilter(models.FilterConfig{ArticleMarker: "/article/", MainPage: "Home"})

	tests := []struct {
		href       string
		want       bool
		wantReason string
	}{
		{"/article/Canada", true, ""},
		{"/wiki/Canada", false, "缺少文章路径标记"},
		{"/article/Home", false, "首页链接"},
		{"/article/Talk:Canada", false, "命名空间链接"},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, reason := f.Check(tt.href)
			if got != tt.want {
				t.Errorf("Check(%q) = %v, 期望 %v", tt.href, got, tt.want)
			}
			if reason != tt.wantReason {
				t.Errorf("原因 = %q, 期望 %q", reason, tt.wantReason)
			}
		})
	}
}
