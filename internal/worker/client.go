package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// Client is the HTTP transport to worker axons. Workers may respond with
// zstd-compressed bodies; the client transparently decompresses.
type Client struct {
	httpClient *resty.Client
}

func NewClient() *Client {
	cli := resty.New().
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	return &Client{httpClient: cli}
}

// Query sends one task to one worker and waits for the full response.
func (c *Client) Query(ctx context.Context, addr string, task QueryTask, timeout time.Duration) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b, err := sonic.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	start := time.Now()
	restyResp, err := c.httpClient.R().SetContext(callCtx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept-Encoding", "zstd").
		SetBody(b).
		Post(fmt.Sprintf("http://%s/query", addr))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", addr, err)
	}

	if restyResp.StatusCode() >= 400 {
		return nil, fmt.Errorf("bad status %d: %s", restyResp.StatusCode(), string(restyResp.Body()))
	}

	data := restyResp.Body()
	if strings.Contains(strings.ToLower(restyResp.Header().Get("Content-Encoding")), "zstd") {
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd: failed to create reader: %w", err)
		}
		defer r.Close()

		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("zstd: failed to decompress response: %w", err)
		}
		data = out
	}

	var resp Response
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	resp.Latency = time.Since(start).Seconds()
	return &resp, nil
}

// IsAlive probes a worker's liveness endpoint. Any transport error or non-2xx
// status counts as not alive for this probe round.
func (c *Client) IsAlive(ctx context.Context, addr string, timeout time.Duration) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	restyResp, err := c.httpClient.R().SetContext(callCtx).
		Get(fmt.Sprintf("http://%s/alive", addr))
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	if restyResp.StatusCode() >= 400 {
		log.Trace().Str("addr", addr).Int("status", restyResp.StatusCode()).Msg("liveness probe rejected")
		return fmt.Errorf("probe %s: bad status %d", addr, restyResp.StatusCode())
	}
	return nil
}
