// Package activation requests one-time activation codes from the issuance backend.
package activation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coreybb/xianyu-autodeliver/models"
)

const (
	autoDeliveryPath = "/api/xianyu/auto-delivery"
	apiKeyHeader     = "X-API-Key"

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20
)

// Client mints activation codes over the backend's shared-secret API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client. timeout bounds every request; zero uses the default.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type mintRequest struct {
	Package string `json:"package"`
	OrderID string `json:"order_id"`
}

type mintResponse struct {
	Success     bool   `json:"success"`
	Code        string `json:"code"`
	RedeemURL   string `json:"redeem_url"`
	PackageName string `json:"package_name"`
	Error       string `json:"error"`
}

// Mint requests a fresh code for plan. orderID is passed along so the backend
// can tie the code to the marketplace order.
func (c *Client) Mint(ctx context.Context, orderID string, plan models.PlanDuration) (*models.ActivationCode, error) {
	if !plan.Resolved() {
		return nil, fmt.Errorf("%w: plan is unresolved", ErrPlanRejected)
	}

	body, err := json.Marshal(mintRequest{Package: plan.String(), OrderID: orderID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+autoDeliveryPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create mint request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Error("Activation API rejected the configured api_key",
			zap.Int("status", resp.StatusCode),
			zap.String("api_key_fingerprint", KeyFingerprint(c.apiKey)),
		)
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ErrPlanRejected, errorMessage(respBody))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, errorMessage(respBody))
	}

	var result mintResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrPlanRejected, result.Error)
	}
	if result.Code == "" || result.RedeemURL == "" {
		return nil, fmt.Errorf("%w: response is missing code or redeem_url", ErrUnavailable)
	}

	code := &models.ActivationCode{
		Code:          result.Code,
		RedemptionURL: result.RedeemURL,
		PackageName:   result.PackageName,
	}
	if code.PackageName == "" {
		code.PackageName = plan.Label()
	}
	return code, nil
}

func errorMessage(body []byte) string {
	var result mintResponse
	if err := json.Unmarshal(body, &result); err == nil && result.Error != "" {
		return result.Error
	}
	return strings.TrimSpace(string(body))
}

// KeyFingerprint identifies an API key in logs without revealing it.
func KeyFingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}
