package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/WikiCrawler/internal/models"
	"github.com/schollz/progressbar/v3"
)

// ReportFileName 运行报告文件名
const ReportFileName = "crawl_report.json"

// Reporter 运行报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// Path 报告文件路径
func (r *Reporter) Path() string {
	return filepath.Join(r.outputDir, ReportFileName)
}

// GenerateReport 写出运行报告,返回文件路径
func (r *Reporter) GenerateReport(report *models.CrawlReport) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	if report.FailedLinks == nil {
		report.FailedLinks = []models.FailedLink{}
	}

	data, err := report.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化报告失败: %w", err)
	}

	path := r.Path()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return path, nil
}

// NewProgressBar 创建进度条,输出到stderr
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
