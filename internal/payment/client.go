package payment

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	userAgent       = "spigell/hh-market"
	paymentsPath    = "/v1/payments"
)

var ErrUnknownReference = errors.New("payment reference is unknown to the provider")

// Client talks to the payment provider's HTTP API.
type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func New(apiURL, token string, logger *zap.Logger) *Client {
	return &Client{
		token:  token,
		APIURL: strings.TrimRight(apiURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}

// Verify fetches the receipt of a payment reference.
func (c *Client) Verify(ctx context.Context, reference string) (*Receipt, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("payment reference is required")
	}

	apiURL := fmt.Sprintf("%s%s/%s", c.APIURL, paymentsPath, url.PathEscape(reference))

	var receipt Receipt
	if err := c.getJSON(ctx, apiURL, &receipt); err != nil {
		return nil, fmt.Errorf("verify payment %s: %w", reference, err)
	}

	if receipt.Reference == "" {
		receipt.Reference = reference
	}

	c.logger.Debug("payment verified",
		zap.String("reference", receipt.Reference),
		zap.String("amount", receipt.Amount.String()),
		zap.String("currency", receipt.Currency),
		zap.String("status", receipt.Status),
	)

	return &receipt, nil
}

func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrUnknownReference
	default:
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	return json.Unmarshal(data, target)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}
