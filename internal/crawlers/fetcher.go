package crawlers

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/RecoveryAshes/WikiCrawler/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

const (
	// DefaultFetchTimeout 默认请求超时
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxBodySize 默认响应体上限
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// PageFetcher 页面抓取接口
// 每个工作协程持有一个独立实例
type PageFetcher interface {
	Fetch(ctx context.Context, link string) (*models.Page, error)
	Close()
}

// Session 基于Colly的抓取会话
// 每个会话拥有独立的http.Transport,连接池按工作协程隔离
type Session struct {
	collector *colly.Collector
	transport *http.Transport
	siteRoot  string

	// HTTP头部提供者
	headerProvider models.HeaderProvider

	// 全局请求限速器(可选,所有会话共享)
	limiter *rate.Limiter

	// 本次请求的响应,Session不跨协程共享
	last *colly.Response
}

// SessionOptions 会话参数
type SessionOptions struct {
	SiteRoot       string
	Fetch          models.FetchConfig
	HeaderProvider models.HeaderProvider
	Limiter        *rate.Limiter
}

// NewLimiter 根据配置创建共享限速器,rateLimit<=0时返回nil
func NewLimiter(rateLimit float64) *rate.Limiter {
	if rateLimit <= 0 {
		return nil
	}
	burst := int(rateLimit)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rateLimit), burst)
}

// NewSession 创建抓取会话
func NewSession(opts SessionOptions) *Session {
	timeout := opts.Fetch.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	maxBody := opts.Fetch.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// 同步模式,每次Visit阻塞到响应结束
	// 允许重复访问: 去重由FrontierStore负责
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(maxBody),
		colly.ParseHTTPErrorResponse(),
	)
	if opts.Fetch.UserAgent != "" {
		c.UserAgent = opts.Fetch.UserAgent
	}
	c.SetClient(&http.Client{Transport: transport, Timeout: timeout})
	c.SetRequestTimeout(timeout)

	s := &Session{
		collector:      c,
		transport:      transport,
		siteRoot:       strings.TrimRight(opts.SiteRoot, "/"),
		headerProvider: opts.HeaderProvider,
		limiter:        opts.Limiter,
	}
	s.setupCallbacks()

	return s
}

// setupCallbacks 设置Colly回调
func (s *Session) setupCallbacks() {
	s.collector.OnRequest(func(r *colly.Request) {
		if s.headerProvider != nil {
			headers, err := s.headerProvider.GetHeaders()
			if err != nil {
				utils.Warnf("获取HTTP头部失败: %v", err)
			} else {
				for name, values := range headers {
					if len(values) > 0 {
						r.Headers.Set(name, values[0])
					}
				}
			}
		}
		// gzip由Colly解压,br/deflate在decompressResponse中处理
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
		utils.Debugf("访问: %s", r.URL.String())
	})

	s.collector.OnResponse(func(r *colly.Response) {
		s.last = r
	})
}

// ResolveURL 相对链接拼接站点根地址,绝对链接原样返回
func (s *Session) ResolveURL(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return s.siteRoot + link
}

// Fetch 抓取单个链接
// 非2xx、网络错误和超时均返回*models.FetchError,不做重试
// ctx取消时中断进行中的请求并返回ctx.Err()
func (s *Session) Fetch(ctx context.Context, link string) (*models.Page, error) {
	target := s.ResolveURL(link)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	// 会话只属于一个工作协程,直接替换请求上下文
	s.collector.Context = ctx
	defer func() { s.collector.Context = context.Background() }()

	s.last = nil
	err := s.collector.Visit(target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classifyError(link, target, err)
	}
	if s.last == nil {
		return nil, &models.FetchError{Link: link, URL: target, Kind: models.FetchErrorNetwork, Err: errors.New("没有收到响应")}
	}

	resp := s.last
	s.last = nil

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.FetchError{
			Link:       link,
			URL:        target,
			Kind:       models.FetchErrorStatus,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	body := resp.Body
	if encoding := resp.Headers.Get("Content-Encoding"); encoding != "" {
		decoded, err := decompressResponse(encoding, body)
		if err != nil {
			utils.Warnf("解压响应失败 [%s] (编码=%s): %v", target, encoding, err)
		} else {
			body = decoded
		}
	}

	return &models.Page{
		Link:        link,
		URL:         target,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Headers.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now(),
	}, nil
}

// Close 释放会话的空闲连接
func (s *Session) Close() {
	s.transport.CloseIdleConnections()
}

// classifyError 将传输层错误归类为FetchError
func classifyError(link, target string, err error) error {
	kind := models.FetchErrorNetwork

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = models.FetchErrorTimeout
	}

	return &models.FetchError{Link: link, URL: target, Kind: kind, Err: err}
}

// decompressResponse 根据Content-Encoding头部解压响应体
// gzip已由Colly处理,这里只处理deflate和br
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		reader := brotli.NewReader(bytes.NewReader(body))
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	default:
		return body, nil
	}
}
