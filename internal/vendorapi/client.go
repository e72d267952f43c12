package vendorapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"partsync/internal/catalog"
)

// ErrCredentialsNotConfigured is returned before any network call when the
// credential triplet is incomplete.
var ErrCredentialsNotConfigured = errors.New(
	"vendor API credentials not configured: set JLCPCB_APP_ID, JLCPCB_API_KEY and JLCPCB_API_SECRET")

const (
	// DefaultBaseURL is the vendor's external API root.
	DefaultBaseURL = "https://jlcpcb.com/external"

	componentInfosPath = "/component/getComponentInfos"

	requestTimeout = 60 * time.Second
	// pageDelay spaces out page fetches to stay polite to the API.
	pageDelay = 500 * time.Millisecond
)

// Client talks to the vendor's signed API.
type Client struct {
	BaseURL string
	Logger  *log.Logger

	appID     string
	accessKey string
	secretKey string

	httpClient *http.Client

	// now and nonce are swappable for deterministic signature tests.
	now   func() time.Time
	nonce func() (string, error)
}

// NewClient returns a vendor API client for the given credential triplet.
// Missing credentials are tolerated here; calls fail with
// ErrCredentialsNotConfigured before touching the network.
func NewClient(appID, accessKey, secretKey string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		BaseURL:    DefaultBaseURL,
		Logger:     logger,
		appID:      appID,
		accessKey:  accessKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		now:        time.Now,
		nonce:      newNonce,
	}
}

// HasCredentials reports whether the full triplet is present.
func (c *Client) HasCredentials() bool {
	return c.appID != "" && c.accessKey != "" && c.secretKey != ""
}

func (c *Client) buildAuthHeader(method, path, body string) (string, error) {
	if !c.HasCredentials() {
		return "", ErrCredentialsNotConfigured
	}
	nonce, err := c.nonce()
	if err != nil {
		return "", err
	}
	timestamp := c.now().Unix()
	signature := sign(c.secretKey, signatureInput(method, path, timestamp, nonce, body))
	return authHeader(c.appID, c.accessKey, nonce, timestamp, signature), nil
}

// Page is one page of the vendor catalog.
type Page struct {
	Rows []catalog.VendorRow `json:"componentInfos"`
	// LastKey is the pagination cursor; empty on the final page.
	LastKey string `json:"lastKey"`
}

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// FetchPage fetches one catalog page. lastKey is the cursor from the
// previous page, empty for the first.
func (c *Client) FetchPage(ctx context.Context, lastKey string) (*Page, error) {
	payload := map[string]string{}
	if lastKey != "" {
		payload["lastKey"] = lastKey
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	auth, err := c.buildAuthHeader(http.MethodPost, componentInfosPath, string(body))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+componentInfosPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vendor API request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendor API request failed: unexpected status %s", resp.Status)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("vendor API response malformed: %w", err)
	}
	if envelope.Code != 200 {
		return nil, fmt.Errorf("vendor API request failed (code %d): %s", envelope.Code, envelope.Message)
	}

	var page Page
	if err := json.Unmarshal(envelope.Data, &page); err != nil {
		return nil, fmt.Errorf("vendor API response malformed: %w", err)
	}
	return &page, nil
}

// Progress reports catalog download advancement: pages fetched, parts so
// far, and a human-readable message.
type Progress func(page int, parts int64, message string)

// DownloadAll walks the full paginated catalog and returns every part,
// normalized. A mid-run failure after at least one successful page returns
// the partial result without error; a failure on the first page is fatal.
func (c *Client) DownloadAll(ctx context.Context, progress Progress) ([]catalog.Part, error) {
	if !c.HasCredentials() {
		return nil, ErrCredentialsNotConfigured
	}

	var parts []catalog.Part
	lastKey := ""
	now := time.Now()

	for page := 1; ; page++ {
		result, err := c.FetchPage(ctx, lastKey)
		if err != nil {
			if len(parts) > 0 && ctx.Err() == nil {
				c.Logger.Printf("catalog download interrupted at page %d, keeping %d parts: %v",
					page, len(parts), err)
				return parts, nil
			}
			return nil, err
		}

		for _, row := range result.Rows {
			parts = append(parts, catalog.NormalizeVendorRow(row, now))
		}

		if progress != nil {
			progress(page, int64(len(parts)), fmt.Sprintf("Downloaded %d parts...", len(parts)))
		}

		if result.LastKey == "" || len(result.Rows) == 0 {
			break
		}
		lastKey = result.LastKey

		select {
		case <-ctx.Done():
			return parts, ctx.Err()
		case <-time.After(pageDelay):
		}
	}

	c.Logger.Printf("catalog download complete: %d parts", len(parts))
	return parts, nil
}
