package chain

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/datura-labs/argus/internal/config"
)

// Client talks to the chain sidecar over HTTP with retries. Registry failures
// are returned to the caller; schedule-driven callers log and retry on their
// next cycle rather than crashing.
type Client struct {
	httpClient *retryablehttp.Client
	baseURL    string
}

func NewClient(cfg *config.ChainEnvConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	baseURL := fmt.Sprintf("http://%s:%s", cfg.SidecarHost, cfg.SidecarPort)

	client := retryablehttp.NewClient()
	client.RetryMax = 5
	client.HTTPClient.Timeout = 30 * time.Second
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 20 * time.Second
	client.Logger = nil

	log.Info().
		Str("base_url", baseURL).
		Int("retry_max", client.RetryMax).
		Msg("chain sidecar client initialized")

	return &Client{
		httpClient: client,
		baseURL:    baseURL,
	}, nil
}

func (c *Client) doRequest(method, endpoint string, body any) ([]byte, error) {
	url := c.baseURL + endpoint

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := sonic.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := retryablehttp.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return respBody, nil
}

func decode[T any](respBody []byte) (SidecarResponse[T], error) {
	var result SidecarResponse[T]
	if err := sonic.Unmarshal(respBody, &result); err != nil {
		return result, fmt.Errorf("parse response: %w", err)
	}
	if !result.Success || result.StatusCode != http.StatusOK || result.Error != nil {
		return result, fmt.Errorf("sidecar returned status %d: %v", result.StatusCode, result.Error)
	}
	return result, nil
}

// GetMetagraph fetches the subnet metagraph for the given netuid.
func (c *Client) GetMetagraph(netuid int) (SubnetMetagraphResponse, error) {
	respBody, err := c.doRequest(http.MethodGet, fmt.Sprintf("/chain/subnet-metagraph/%d", netuid), nil)
	if err != nil {
		return SubnetMetagraphResponse{}, err
	}
	return decode[SubnetMetagraph](respBody)
}

// GetLatestBlock retrieves the latest block details from the chain.
func (c *Client) GetLatestBlock() (LatestBlockResponse, error) {
	respBody, err := c.doRequest(http.MethodGet, "/chain/latest-block", nil)
	if err != nil {
		return LatestBlockResponse{}, err
	}
	return decode[LatestBlock](respBody)
}

// SetWeights commits the weight vector on chain and returns the extrinsic hash.
func (c *Client) SetWeights(params SetWeightsParams) (ExtrinsicHashResponse, error) {
	respBody, err := c.doRequest(http.MethodPost, "/chain/set-weights", params)
	if err != nil {
		return ExtrinsicHashResponse{}, err
	}
	return decode[string](respBody)
}

// SignMessage signs an arbitrary message with the validator's keypair.
func (c *Client) SignMessage(params SignMessageParams) (SignMessageResponse, error) {
	respBody, err := c.doRequest(http.MethodPost, "/substrate/sign-message/sign", params)
	if err != nil {
		return SignMessageResponse{}, err
	}
	return decode[SignMessage](respBody)
}
