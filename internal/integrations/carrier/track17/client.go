package track17

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"context"

	"github.com/dropsync/dropsync/internal/integrations/carrier"
	"github.com/pkg/errors"
)

// MaxBatchSize — лимит провайдера на количество номеров в одном вызове.
const MaxBatchSize = 40

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.17track.net/track/v2.2"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type wireRequestItem struct {
	Number string `json:"number"`
}

type wireResponse struct {
	Code int `json:"code"`
	Data struct {
		Accepted []carrier.AcceptedItem `json:"accepted"`
		Rejected []carrier.RejectedItem `json:"rejected"`
	} `json:"data"`
}

func (c *Client) GetTrackInfo(ctx context.Context, numbers []string) (carrier.BatchResult, error) {
	return c.post(ctx, "/gettrackinfo", numbers)
}

func (c *Client) RegisterWebhook(ctx context.Context, numbers []string) (carrier.BatchResult, error) {
	return c.post(ctx, "/register", numbers)
}

func (c *Client) post(ctx context.Context, path string, numbers []string) (carrier.BatchResult, error) {
	if len(numbers) == 0 {
		return carrier.BatchResult{}, errors.New("numbers is empty")
	}
	if len(numbers) > MaxBatchSize {
		return carrier.BatchResult{}, errors.Errorf("too many numbers (max %d)", MaxBatchSize)
	}
	if c.apiKey == "" {
		return carrier.BatchResult{}, errors.New("tracking provider api key is not configured")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return carrier.BatchResult{}, errors.Wrap(err, "parse base url")
	}
	u.Path += path

	items := make([]wireRequestItem, 0, len(numbers))
	for _, n := range numbers {
		items = append(items, wireRequestItem{Number: n})
	}
	body, err := json.Marshal(items)
	if err != nil {
		return carrier.BatchResult{}, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return carrier.BatchResult{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("17token", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carrier.BatchResult{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return carrier.BatchResult{}, fmt.Errorf("tracking provider rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return carrier.BatchResult{}, fmt.Errorf("tracking provider http %d", resp.StatusCode)
	}

	var r wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return carrier.BatchResult{}, errors.Wrap(err, "decode")
	}
	if r.Code != 0 {
		return carrier.BatchResult{}, fmt.Errorf("tracking provider code=%d", r.Code)
	}

	return carrier.BatchResult{
		Accepted: r.Data.Accepted,
		Rejected: r.Data.Rejected,
	}, nil
}
