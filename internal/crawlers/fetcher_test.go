package crawlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/andybalholm/brotli"
)

type staticHeaders http.Header

func (h staticHeaders) GetHeaders() (http.Header, error) {
	return http.Header(h), nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/Canada", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<p>Canada</p><a href="/wiki/Ontario">Ontario</a>`))
	})
	mux.HandleFunc("/wiki/Missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/wiki/Broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/wiki/Slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/wiki/Brotli", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, _ = bw.Write([]byte("<p>compressed</p>"))
		_ = bw.Close()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/wiki/Echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(r.Header.Get("X-Test") + "|" + r.UserAgent()))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_Fetch(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(SessionOptions{SiteRoot: srv.URL, Fetch: models.FetchConfig{Timeout: time.Second}})
	defer s.Close()

	page, err := s.Fetch(context.Background(), "/wiki/Canada")
	if err != nil {
		t.Fatalf("抓取失败: %v", err)
	}
	if page.StatusCode != http.StatusOK {
		t.Errorf("期望200, 实际%d", page.StatusCode)
	}
	if page.URL != srv.URL+"/wiki/Canada" {
		t.Errorf("URL拼接错误: %s", page.URL)
	}
	if !strings.Contains(string(page.Body), "Ontario") {
		t.Errorf("响应体不完整: %s", page.Body)
	}
}

func TestSession_FetchErrors(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(SessionOptions{SiteRoot: srv.URL, Fetch: models.FetchConfig{Timeout: 200 * time.Millisecond}})
	defer s.Close()

	tests := []struct {
		name          string
		link          string
		wantKind      models.FetchErrorKind
		wantStatus    int
		wantTemporary bool
	}{
		{"404为永久错误", "/wiki/Missing", models.FetchErrorStatus, http.StatusNotFound, false},
		{"503为临时错误", "/wiki/Broken", models.FetchErrorStatus, http.StatusServiceUnavailable, true},
		{"超时", "/wiki/Slow", models.FetchErrorTimeout, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Fetch(context.Background(), tt.link)
			fe, ok := models.IsFetchError(err)
			if !ok {
				t.Fatalf("期望FetchError, 实际: %v", err)
			}
			if fe.Kind != tt.wantKind {
				t.Errorf("期望类型%s, 实际%s", tt.wantKind, fe.Kind)
			}
			if fe.StatusCode != tt.wantStatus {
				t.Errorf("期望状态码%d, 实际%d", tt.wantStatus, fe.StatusCode)
			}
			if fe.Temporary() != tt.wantTemporary {
				t.Errorf("Temporary() = %v, 期望 %v", fe.Temporary(), tt.wantTemporary)
			}
			if fe.Link != tt.link {
				t.Errorf("错误中的链接应该是%s, 实际%s", tt.link, fe.Link)
			}
		})
	}

	t.Run("连接失败为网络错误", func(t *testing.T) {
		s := NewSession(SessionOptions{SiteRoot: "http://127.0.0.1:1", Fetch: models.FetchConfig{Timeout: time.Second}})
		defer s.Close()

		_, err := s.Fetch(context.Background(), "/wiki/Canada")
		fe, ok := models.IsFetchError(err)
		if !ok {
			t.Fatalf("期望FetchError, 实际: %v", err)
		}
		if fe.Kind != models.FetchErrorNetwork {
			t.Errorf("期望network, 实际%s", fe.Kind)
		}
	})
}

func TestSession_Brotli(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(SessionOptions{SiteRoot: srv.URL})
	defer s.Close()

	page, err := s.Fetch(context.Background(), "/wiki/Brotli")
	if err != nil {
		t.Fatalf("抓取失败: %v", err)
	}
	if string(page.Body) != "<p>compressed</p>" {
		t.Errorf("brotli解压失败: %q", page.Body)
	}
}

func TestSession_Headers(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(SessionOptions{
		SiteRoot:       srv.URL,
		Fetch:          models.FetchConfig{UserAgent: "WikiCrawler-Test/1.0"},
		HeaderProvider: staticHeaders{"X-Test": []string{"hello"}},
	})
	defer s.Close()

	page, err := s.Fetch(context.Background(), "/wiki/Echo")
	if err != nil {
		t.Fatalf("抓取失败: %v", err)
	}
	if got := string(page.Body); got != "hello|WikiCrawler-Test/1.0" {
		t.Errorf("请求头未生效: %q", got)
	}
}

func TestSession_CanceledContext(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(SessionOptions{SiteRoot: srv.URL})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Fetch(ctx, "/wiki/Canada")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("期望context.Canceled, 实际: %v", err)
	}
}

func TestSession_CancelInFlight(t *testing.T) {
	srv := newTestServer(t)
	s := NewSession(SessionOptions{SiteRoot: srv.URL, Fetch: models.FetchConfig{Timeout: 10 * time.Second}})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()

	start := time.Now()
	_, err := s.Fetch(ctx, "/wiki/Slow")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望context.Canceled, 实际: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("取消后应立即返回, 实际耗时%s", elapsed)
	}

	// 取消只影响本次请求
	if _, err := s.Fetch(context.Background(), "/wiki/Canada"); err != nil {
		t.Errorf("取消后的下一次抓取失败: %v", err)
	}
}

func TestSession_ResolveURL(t *testing.T) {
	s := NewSession(SessionOptions{SiteRoot: "https://en.wikipedia.org/"})
	defer s.Close()

	tests := []struct {
		link string
		want string
	}{
		{"/wiki/Canada", "https://en.wikipedia.org/wiki/Canada"},
		{"wiki/Canada", "https://en.wikipedia.org/wiki/Canada"},
		{"https://en.wikipedia.org/wiki/Canada", "https://en.wikipedia.org/wiki/Canada"},
		{"http://example.com/wiki/X", "http://example.com/wiki/X"},
	}

	for _, tt := range tests {
		if got := s.ResolveURL(tt.link); got != tt.want {
			t.Errorf("ResolveURL(%q) = %q, 期望 %q", tt.link, got, tt.want)
		}
	}
}

func TestNewLimiter(t *testing.T) {
	if NewLimiter(0) != nil {
		t.Error("速率为0时不应创建限速器")
	}
	if l := NewLimiter(0.5); l == nil || l.Burst() != 1 {
		t.Error("小于1的速率应该使用突发值1")
	}
}
