package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrFrontierEmpty 待爬集合为空
// 这是正常的终止信号,不是故障
var ErrFrontierEmpty = errors.New("待爬链接集合为空")

// FetchErrorKind 抓取错误类型
type FetchErrorKind string

const (
	FetchErrorStatus  FetchErrorKind = "status"  // 非2xx响应
	FetchErrorNetwork FetchErrorKind = "network" // 连接/传输失败
	FetchErrorTimeout FetchErrorKind = "timeout" // 请求超时
)

// FetchError 页面抓取错误
type FetchError struct {
	// Link 抓取的链接(原始形式,未拼接站点根地址)
	Link string

	// URL 实际请求的完整URL
	URL string

	// Kind 错误类型
	Kind FetchErrorKind

	// StatusCode HTTP状态码 (仅Kind=status时有效)
	StatusCode int

	// Err 底层错误
	Err error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.Kind == FetchErrorStatus {
		return fmt.Sprintf("抓取失败 [%s]: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("抓取失败 [%s] (%s): %v", e.URL, e.Kind, e.Err)
}

// Unwrap 支持errors.Unwrap
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Temporary 是否为可重试的临时错误
// 网络错误、超时、5xx和429视为临时错误,其余状态码视为永久错误
func (e *FetchError) Temporary() bool {
	switch e.Kind {
	case FetchErrorNetwork, FetchErrorTimeout:
		return true
	case FetchErrorStatus:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// PersistenceError 检查点读写错误
type PersistenceError struct {
	// Op 操作: load, save, flush
	Op string

	// Name 记录集名称或文件名
	Name string

	// Err 底层错误
	Err error
}

// Error 实现error接口
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("持久化失败 [%s %s]: %v", e.Op, e.Name, e.Err)
}

// Unwrap 支持errors.Unwrap
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConfigError 配置文件错误
type ConfigError struct {
	// FilePath 配置文件路径 (可能为空,表示使用默认值)
	FilePath string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// IsFetchError 判断错误链中是否包含FetchError
func IsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
