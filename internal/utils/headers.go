package utils

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"golang.org/x/net/http/httpguts"
)

// MaxHeaderValueLength 头部值最大长度(字节)
const MaxHeaderValueLength = 8192

var (
	// ForbiddenHeaders 由HTTP客户端管理的头部,不允许配置
	ForbiddenHeaders = []string{
		"Host",
		"Content-Length",
		"Transfer-Encoding",
		"Connection",
		"Accept-Encoding",
	}

	// SensitiveKeywords 头部名称包含这些关键字时在日志中脱敏
	SensitiveKeywords = []string{
		"authorization",
		"cookie",
		"token",
		"key",
		"secret",
		"password",
		"credential",
	}
)

// HeaderValidator 按RFC 7230检查头部
type HeaderValidator struct {
	forbidden map[string]struct{}
}

// NewHeaderValidator 创建验证器
func NewHeaderValidator() *HeaderValidator {
	forbidden := make(map[string]struct{}, len(ForbiddenHeaders))
	for _, h := range ForbiddenHeaders {
		forbidden[http.CanonicalHeaderKey(h)] = struct{}{}
	}
	return &HeaderValidator{forbidden: forbidden}
}

// IsForbidden 检查头部是否由客户端管理
func (hv *HeaderValidator) IsForbidden(name string) bool {
	_, ok := hv.forbidden[http.CanonicalHeaderKey(name)]
	return ok
}

// ValidateHeader 检查单个头部
func (hv *HeaderValidator) ValidateHeader(name, value string) error {
	switch {
	case name == "":
		return &models.ValidationError{Field: "name", Reason: "头部名称不能为空"}
	case hv.IsForbidden(name):
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "此头部由HTTP客户端自动管理,不允许自定义",
			Suggestion: fmt.Sprintf("移除 '%s' 头部配置", name),
		}
	case !httpguts.ValidHeaderFieldName(name):
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称包含非法字符",
			Suggestion: "使用字母、数字和连字符 (如 'User-Agent', 'X-Custom-Header')",
		}
	case len(value) > MaxHeaderValueLength:
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
		}
	case !httpguts.ValidHeaderFieldValue(value):
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值包含控制字符",
			Suggestion: "移除换行符等控制字符",
		}
	}
	return nil
}

// Validate 检查全部头部,返回第一个错误
func (hv *HeaderValidator) Validate(headers http.Header) error {
	for _, name := range sortedNames(headers) {
		for _, value := range headers[name] {
			if err := hv.ValidateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// HeaderRedactor 日志输出前隐藏敏感头部值
type HeaderRedactor struct {
	keywords []string
}

// NewHeaderRedactor 创建脱敏器
func NewHeaderRedactor() *HeaderRedactor {
	return &HeaderRedactor{keywords: SensitiveKeywords}
}

// IsSensitive 按名称关键字判断
func (hr *HeaderRedactor) IsSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range hr.keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// RedactValue 脱敏单个值
//   - Bearer令牌只保留前缀
//   - 长度大于8保留首尾各4位
//   - 其余完全隐藏
func (hr *HeaderRedactor) RedactValue(name, value string) string {
	if !hr.IsSensitive(name) {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// Redact 返回可写入日志的头部副本,每个头部只取第一个值
func (hr *HeaderRedactor) Redact(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		result[name] = hr.RedactValue(name, values[0])
	}
	return result
}

// RedactToString 格式化为 "Name: value, ..." (按名称排序)
func (hr *HeaderRedactor) RedactToString(headers http.Header) string {
	parts := make([]string, 0, len(headers))
	for _, name := range sortedNames(headers) {
		if len(headers[name]) == 0 {
			continue
		}
		parts = append(parts, name+": "+hr.RedactValue(name, headers[name][0]))
	}
	return strings.Join(parts, ", ")
}

func sortedNames(headers http.Header) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
