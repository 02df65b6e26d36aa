// Package encoder 提供文本编码协作者（core.TextEncoder）的远程实现。
// 文本 embedding 的训练与推理在引擎外部完成（TorchServe、自建服务等），
// 本包只做传输：POST 文本、取回向量。
package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maxwelljhuang/knytt/core"
)

// HTTPEncoder 通过 REST 调用远程 embedding 服务。
//
// 请求格式：POST {Endpoint}/predictions/{ModelName}
//
//	{"text": "red dress"}
//
// 响应格式：
//
//	{"embedding": [0.1, 0.2, ...]}
//
// TorchServe 风格的端点布局，自建服务按同一约定暴露即可。
type HTTPEncoder struct {
	// Endpoint 服务端点，如 "http://localhost:8080"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// Timeout 超时时间
	Timeout time.Duration

	httpClient *http.Client
}

// HTTPEncoderOption 配置 HTTPEncoder。
type HTTPEncoderOption func(*HTTPEncoder)

// WithTimeout 设置超时时间。
func WithTimeout(timeout time.Duration) HTTPEncoderOption {
	return func(c *HTTPEncoder) {
		c.Timeout = timeout
		if c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient 设置自定义 HTTP 客户端。
func WithHTTPClient(httpClient *http.Client) HTTPEncoderOption {
	return func(c *HTTPEncoder) {
		c.httpClient = httpClient
	}
}

// NewHTTPEncoder 创建远程编码客户端。
func NewHTTPEncoder(endpoint, modelName string, opts ...HTTPEncoderOption) *HTTPEncoder {
	c := &HTTPEncoder{
		Endpoint:  endpoint,
		ModelName: modelName,
		Timeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

type encodeRequest struct {
	Text string `json:"text"`
}

type encodeResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EncodeText 实现 core.TextEncoder。
func (c *HTTPEncoder) EncodeText(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	url := fmt.Sprintf("%s/predictions/%s", c.Endpoint, c.ModelName)
	body, err := json.Marshal(encodeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("encoder service error: status=%d, body=%s", resp.StatusCode, raw)
	}

	var out encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return out.Embedding, nil
}

// Health 健康检查（TorchServe 风格的 /ping）。
func (c *HTTPEncoder) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"/ping", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("encoder service unhealthy: status=%d", resp.StatusCode)
	}
	return nil
}

var _ core.TextEncoder = (*HTTPEncoder)(nil)
