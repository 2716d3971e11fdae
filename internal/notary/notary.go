// Package notary records verified evidence with an external ledger.
package notary

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client calls a notarization service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client. A zero timeout defaults to five seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type recordRequest struct {
	UserID      string `json:"user_id"`
	EvidenceURI string `json:"evidence_uri"`
}

type recordResponse struct {
	TransactionHash string `json:"transaction_hash"`
}

// Record submits the evidence and returns the ledger transaction hash.
func (c *Client) Record(ctx context.Context, userID, evidenceURI string) (string, error) {
	body, err := json.Marshal(recordRequest{UserID: userID, EvidenceURI: evidenceURI})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/records", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("notary request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("notary record: status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var payload recordResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode notary response: %w", err)
	}
	if payload.TransactionHash == "" {
		return "", errors.New("notary response missing transaction_hash")
	}
	return payload.TransactionHash, nil
}

// Mock derives a stable pseudo transaction hash from its inputs. It stands in
// for the ledger when no notary URL is configured.
type Mock struct {
	logger *slog.Logger
}

// NewMock constructs a Mock. A nil logger uses slog.Default.
func NewMock(logger *slog.Logger) *Mock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mock{logger: logger.With("component", "notary_mock")}
}

// Record returns "0x" followed by the hex SHA-256 of userID and evidenceURI.
func (m *Mock) Record(ctx context.Context, userID, evidenceURI string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(userID + "\x00" + evidenceURI))
	hash := "0x" + hex.EncodeToString(sum[:])
	m.logger.DebugContext(ctx, "mock notarization",
		slog.String("user_id", userID),
		slog.String("tx_hash", hash),
	)
	return hash, nil
}
