package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrInsufficientBalance 账户余额不足以提交交易或下存储单
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// Client 分布式账本客户端
// 签名密钥和交易提交由外部 signer sidecar 持有，这里只是指针写入的边界
type Client interface {
	// RecordDatalog 以内容地址写一条 datalog 记录，返回交易哈希
	RecordDatalog(ctx context.Context, cid string) (string, error)
	// SetTwinTopic 将配置的内容地址登记到 twin 的配置主题
	SetTwinTopic(ctx context.Context, cid string, twinID int) error
	// OrderStorage 在存储网络为 CID 下单，保证内容长期可取回
	OrderStorage(ctx context.Context, cid string, size int64) error
}

// HTTPClient 经 signer sidecar REST 接口的实现
type HTTPClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPClient 创建 sidecar 客户端
func NewHTTPClient(sidecarURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	client := resty.New().
		SetBaseURL(sidecarURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &HTTPClient{
		httpClient: client,
		logger:     logger,
	}
}

type datalogRequest struct {
	CID string `json:"cid"`
}

type datalogResponse struct {
	TxHash string `json:"tx_hash"`
}

// RecordDatalog 写 datalog 记录
func (c *HTTPClient) RecordDatalog(ctx context.Context, cid string) (string, error) {
	var result datalogResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(datalogRequest{CID: cid}).
		SetResult(&result).
		Post("/datalog")
	if err != nil {
		return "", fmt.Errorf("failed to record datalog: %w", err)
	}
	if resp.StatusCode() == http.StatusPaymentRequired {
		return "", ErrInsufficientBalance
	}
	if resp.IsError() {
		return "", fmt.Errorf("ledger sidecar returned %d for datalog: %s", resp.StatusCode(), resp.String())
	}
	c.logger.Debug("Datalog recorded",
		zap.String("cid", cid),
		zap.String("tx_hash", result.TxHash),
	)
	return result.TxHash, nil
}

type topicRequest struct {
	CID string `json:"cid"`
}

// SetTwinTopic 登记配置主题
func (c *HTTPClient) SetTwinTopic(ctx context.Context, cid string, twinID int) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(topicRequest{CID: cid}).
		Post("/twin/" + strconv.Itoa(twinID) + "/topic")
	if err != nil {
		return fmt.Errorf("failed to set twin topic: %w", err)
	}
	if resp.StatusCode() == http.StatusPaymentRequired {
		return ErrInsufficientBalance
	}
	if resp.IsError() {
		return fmt.Errorf("ledger sidecar returned %d for twin topic: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type storageOrderRequest struct {
	CID  string `json:"cid"`
	Size int64  `json:"size"`
}

// OrderStorage 下存储单
func (c *HTTPClient) OrderStorage(ctx context.Context, cid string, size int64) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(storageOrderRequest{CID: cid, Size: size}).
		Post("/storage/order")
	if err != nil {
		return fmt.Errorf("failed to order storage: %w", err)
	}
	if resp.StatusCode() == http.StatusPaymentRequired {
		return ErrInsufficientBalance
	}
	if resp.IsError() {
		return fmt.Errorf("ledger sidecar returned %d for storage order: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
