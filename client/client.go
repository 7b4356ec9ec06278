// Package client 供翻译服务上报遥测记录的 HTTP 客户端
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/valyala/fasthttp"

	"github.com/MeowSalty/transtat/errs"
	"github.com/MeowSalty/transtat/services/telemetry"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultMaxTries = 5
)

// Client 遥测服务客户端
//
// 仅在服务端返回可重试的 StorageUnavailable 或网络故障时按指数退避重试，
// 校验错误与请求错误立即返回。
type Client struct {
	baseURL  string
	token    string
	http     *fasthttp.Client
	timeout  time.Duration
	maxTries uint
	newBack  func() backoff.BackOff
	logger   *slog.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithToken 设置 Bearer Token
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxTries 设置最大尝试次数（包含首次请求）
func WithMaxTries(n uint) Option {
	return func(c *Client) { c.maxTries = n }
}

// WithBackOff 设置退避间隔
func WithBackOff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.newBack = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			return b
		}
	}
}

// WithHTTPClient 使用自定义的 fasthttp 客户端
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger 设置日志记录器
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New 创建客户端，baseURL 形如 http://127.0.0.1:3000
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &fasthttp.Client{},
		timeout:  defaultTimeout,
		maxTries: defaultMaxTries,
		newBack: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record 上报一次翻译，返回服务端分配的 ID
func (c *Client) Record(ctx context.Context, in telemetry.RecordInput) (uint64, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("序列化遥测记录失败：%w", err)
	}

	var resp struct {
		ID uint64 `json:"id"`
	}
	err = c.retry(ctx, "上报遥测记录", func() error {
		return c.do(ctx, fasthttp.MethodPost, "/api/translations", body, fasthttp.StatusCreated, &resp)
	})
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// Aggregate 查询聚合结果
func (c *Client) Aggregate(ctx context.Context, req telemetry.AggregateRequest) (map[string]float64, error) {
	q := url.Values{}
	q.Set("metric", req.Metric)
	if req.Statistic != "" {
		q.Set("statistic", req.Statistic)
	}
	q.Set("group_by", strings.Join(req.GroupBy, ","))
	for key, value := range map[string]string{
		"model_name":  req.ModelName,
		"source_lang": req.SourceLang,
		"target_lang": req.TargetLang,
	} {
		if value != "" {
			q.Set(key, value)
		}
	}
	if req.Range != nil {
		q.Set("start", req.Range.Start.Format(time.RFC3339Nano))
		q.Set("end", req.Range.End.Format(time.RFC3339Nano))
	}

	var resp struct {
		Groups map[string]float64 `json:"groups"`
	}
	err := c.retry(ctx, "查询聚合结果", func() error {
		return c.do(ctx, fasthttp.MethodGet, "/api/translations/aggregate?"+q.Encode(), nil, fasthttp.StatusOK, &resp)
	})
	if err != nil {
		return nil, err
	}
	if resp.Groups == nil {
		resp.Groups = map[string]float64{}
	}
	return resp.Groups, nil
}

// retry 按指数退避重试可重试的错误
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn()
		if err != nil && !errs.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(c.newBack()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.WarnContext(ctx, op+"失败，稍后重试", "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	return err
}

// do 发送一次请求并解析响应
func (c *Client) do(ctx context.Context, method, path string, body []byte, wantStatus int, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}
	if c.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errs.Unavailable("连接遥测服务失败", true, err)
	}

	if resp.StatusCode() != wantStatus {
		return decodeError(resp)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("解析响应失败：%w", err)
	}
	return nil
}

// decodeError 将服务端的错误响应还原为 *errs.Error
func decodeError(resp *fasthttp.Response) error {
	status := resp.StatusCode()

	var body struct {
		Error     string `json:"error"`
		Code      string `json:"code"`
		Field     string `json:"field"`
		Retryable bool   `json:"retryable"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Code == "" {
		// 非服务端生成的错误（如网关），5xx 视为暂时不可用
		if status >= 500 {
			return errs.Unavailable(fmt.Sprintf("遥测服务返回状态码 %d", status), true, nil)
		}
		return fmt.Errorf("遥测服务返回状态码 %d：%s", status, resp.Body())
	}

	switch code := errs.Code(body.Code); code {
	case errs.CodeValidation, errs.CodeRequest, errs.CodeStorageUnavailable:
		return &errs.Error{
			Code:      code,
			Message:   strings.TrimPrefix(body.Error, body.Field+"："),
			Field:     body.Field,
			Retryable: body.Retryable,
		}
	}
	return errors.New(body.Error)
}
