// Copyright (c) 2025 BVK Chaitanya

package backpack

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bvk/rangebot/ctxutil"
	"golang.org/x/time/rate"
)

// Client is a minimal Backpack exchange REST client.
type Client struct {
	opts Options

	restURL *url.URL

	client http.Client

	limiter *rate.Limiter

	key    string
	priKey ed25519.PrivateKey
}

// New returns a client. Credentials are optional and only required for the
// private (signed) endpoints.
func New(creds *Credentials, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	restURL, err := url.Parse(opts.RestURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		opts:    *opts,
		restURL: restURL,
		client: http.Client{
			Timeout: opts.HttpClientTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.RequestsBurst),
	}

	if creds != nil {
		if err := creds.Check(); err != nil {
			return nil, fmt.Errorf("invalid backpack credentials: %w", err)
		}
		priKey, _ := creds.privateKey()
		c.key, c.priKey = creds.Key, priKey
	}
	return c, nil
}

// Close releases the idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(p string, values url.Values) *url.URL {
	u := &url.URL{
		Scheme: c.restURL.Scheme,
		Host:   c.restURL.Host,
		Path:   path.Join(c.restURL.Path, p),
	}
	if len(values) != 0 {
		u.RawQuery = values.Encode()
	}
	return u
}

// GetTicker returns the ticker summary for a market symbol, like SOL_USDC.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	if len(symbol) == 0 {
		return nil, fmt.Errorf("market symbol cannot be empty: %w", os.ErrInvalid)
	}
	values := make(url.Values)
	values.Set("symbol", symbol)

	addrURL := c.endpoint("/api/v1/ticker", values)
	resp := new(Ticker)
	if err := c.getJSON(ctx, addrURL, nil /* headers */, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get market ticker", "symbol", symbol, "url", addrURL, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

// LastPrice returns the last traded price for the symbol as sent by the
// server. Returned value can be empty if the server response doesn't include
// a price.
func (c *Client) LastPrice(ctx context.Context, symbol string) (string, error) {
	ticker, err := c.GetTicker(ctx, symbol)
	if err != nil {
		return "", err
	}
	return string(ticker.LastPrice), nil
}

// GetBalances returns the account capital per asset. This is a signed request
// and requires credentials.
func (c *Client) GetBalances(ctx context.Context) (map[string]*Balance, error) {
	headers, err := c.sign("balanceQuery", nil /* params */, time.Now())
	if err != nil {
		return nil, err
	}
	addrURL := c.endpoint("/api/v1/capital", nil)
	resp := make(map[string]*Balance)
	if err := c.getJSON(ctx, addrURL, headers, &resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get account balances", "url", addrURL, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

// sign returns the authentication headers for a private request. Signed
// message is the instruction followed by the alphabetically sorted request
// parameters and the timestamp and window values.
func (c *Client) sign(instruction string, params url.Values, at time.Time) (http.Header, error) {
	if c.priKey == nil {
		return nil, fmt.Errorf("client has no credentials: %w", os.ErrPermission)
	}
	timestamp := strconv.FormatInt(at.UnixMilli(), 10)
	window := strconv.FormatInt(c.opts.SignatureWindow.Milliseconds(), 10)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{"instruction=" + instruction}
	for _, k := range keys {
		parts = append(parts, k+"="+params.Get(k))
	}
	parts = append(parts, "timestamp="+timestamp, "window="+window)
	message := strings.Join(parts, "&")

	signature := ed25519.Sign(c.priKey, []byte(message))

	h := make(http.Header)
	h.Set("X-API-Key", c.key)
	h.Set("X-Signature", base64.StdEncoding.EncodeToString(signature))
	h.Set("X-Timestamp", timestamp)
	h.Set("X-Window", window)
	return h, nil
}

func (c *Client) getJSON(ctx context.Context, addrURL *url.URL, headers http.Header, response any) error {
	for retry := 0; ; retry++ {
		wait, err := c.tryGetJSON(ctx, addrURL, headers, response)
		if err == nil {
			return nil
		}
		if wait == 0 || retry >= c.opts.MaxRetries {
			return err
		}
		slog.Warn("backpack request will be retried", "url", addrURL, "retry", retry+1, "wait", wait, "err", err)
		if err := ctxutil.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryGetJSON performs one GET request. Returns a non-zero wait duration
// along with the error when the request can be retried.
func (c *Client) tryGetJSON(ctx context.Context, addrURL *url.URL, headers http.Header, response any) (time.Duration, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addrURL.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("could not create http get request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	s := time.Now()
	resp, err := c.client.Do(req)
	if d := time.Since(s); d > c.opts.HttpClientTimeout {
		slog.Warn(fmt.Sprintf("get request took %s which is more than the http client timeout %s", d, c.opts.HttpClientTimeout))
	}
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("could not read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		wait := c.opts.RetryInterval
		if x := resp.Header.Get("Retry-After"); len(x) != 0 {
			if v, err := strconv.Atoi(x); err == nil && v > 0 {
				wait = time.Duration(v) * time.Second
			}
		}
		return wait, fmt.Errorf("http GET returned %d", resp.StatusCode)
	default:
		var eresp errorResponse
		if err := json.Unmarshal(body, &eresp); err == nil && len(eresp.Code) != 0 {
			return 0, fmt.Errorf("http GET returned %d: %s: %s", resp.StatusCode, eresp.Code, eresp.Message)
		}
		return 0, fmt.Errorf("http GET returned %d: %s", resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, response); err != nil {
		return 0, fmt.Errorf("could not decode response %q: %w", body, err)
	}
	return 0, nil
}
