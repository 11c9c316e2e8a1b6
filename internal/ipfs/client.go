package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client kubo 节点 HTTP API 客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建 IPFS 客户端
func NewClient(apiAddr string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(apiAddr).
		SetTimeout(timeout)

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

type apiError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
}

// Add 上传文件，返回 CID 和字节数
func (c *Client) Add(ctx context.Context, path string, pin bool) (string, int64, error) {
	var result addResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFile("file", path).
		SetQueryParam("pin", strconv.FormatBool(pin)).
		SetResult(&result).
		Post("/api/v0/add")
	if err != nil {
		return "", 0, fmt.Errorf("failed to add %s: %w", filepath.Base(path), err)
	}
	if resp.IsError() {
		return "", 0, fmt.Errorf("ipfs add returned %d: %s", resp.StatusCode(), resp.String())
	}
	size, err := strconv.ParseInt(result.Size, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("ipfs add returned unparsable size %q: %w", result.Size, err)
	}
	c.logger.Debug("Added file to IPFS",
		zap.String("file", filepath.Base(path)),
		zap.String("cid", result.Hash),
		zap.Int64("size", size),
	)
	return result.Hash, size, nil
}

// FilesMkdir 创建 MFS 目录，已存在时不报错
func (c *Client) FilesMkdir(ctx context.Context, path string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("arg", path).
		SetQueryParam("parents", "true").
		Post("/api/v0/files/mkdir")
	if err != nil {
		return fmt.Errorf("failed to mkdir %s: %w", path, err)
	}
	if resp.IsError() {
		var apiErr apiError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && strings.Contains(apiErr.Message, "already exists") {
			return nil
		}
		return fmt.Errorf("ipfs files/mkdir returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// FilesCp 将已上传的 CID 挂入 MFS 目录
func (c *Client) FilesCp(ctx context.Context, cid, dst string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParamsFromValues(url.Values{
			"arg": {"/ipfs/" + cid, dst},
		}).
		Post("/api/v0/files/cp")
	if err != nil {
		return fmt.Errorf("failed to cp %s to %s: %w", cid, dst, err)
	}
	if resp.IsError() {
		return fmt.Errorf("ipfs files/cp returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// FileEntry MFS 目录条目
type FileEntry struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size int64  `json:"Size"`
}

type lsResponse struct {
	Entries []FileEntry `json:"Entries"`
}

// FilesLs 列出 MFS 目录
func (c *Client) FilesLs(ctx context.Context, path string) ([]FileEntry, error) {
	var result lsResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("arg", path).
		SetQueryParam("long", "true").
		SetResult(&result).
		Post("/api/v0/files/ls")
	if err != nil {
		return nil, fmt.Errorf("failed to ls %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ipfs files/ls returned %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Entries, nil
}

// FilesRm 删除 MFS 条目
func (c *Client) FilesRm(ctx context.Context, path string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("arg", path).
		Post("/api/v0/files/rm")
	if err != nil {
		return fmt.Errorf("failed to rm %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("ipfs files/rm returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// PinRm 取消固定
func (c *Client) PinRm(ctx context.Context, cid string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("arg", cid).
		Post("/api/v0/pin/rm")
	if err != nil {
		return fmt.Errorf("failed to unpin %s: %w", cid, err)
	}
	if resp.IsError() {
		return fmt.Errorf("ipfs pin/rm returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
