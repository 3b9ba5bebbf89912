package sheet

import (
	"bytes"
	"context"
	"time"

	"church-roster/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Fetcher 下载远程排班工作簿（共享表格的 xlsx 导出链接）
type Fetcher struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewFetcher 创建下载客户端
func NewFetcher(url string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	return &Fetcher{httpClient: client, url: url, logger: logger}
}

// Fetch 下载原始字节
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	f.logger.Info("Downloading roster workbook", zap.String("url", f.url))

	resp, err := f.httpClient.R().SetContext(ctx).Get(f.url)
	if err != nil {
		f.logger.Error("Roster download failed", zap.Error(err))
		return nil, domain.NewExternalServiceError(err, "download workbook")
	}
	if resp.IsError() {
		f.logger.Error("Roster download returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("status", resp.Status()),
		)
		return nil, domain.NewExternalServiceError(nil, "download workbook: http %d", resp.StatusCode())
	}

	f.logger.Info("Roster workbook downloaded", zap.Int("bytes", len(resp.Body())))
	return resp.Body(), nil
}

// FetchWorkbook 下载并解析
func (f *Fetcher) FetchWorkbook(ctx context.Context) (*Workbook, error) {
	body, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return Read(bytes.NewReader(body))
}
