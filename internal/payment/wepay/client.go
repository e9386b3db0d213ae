package wepay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type ClientConfig struct {
	BaseURL    string `json:"base_url" mapstructure:"base_url"`
	AppID      string `json:"app_id" mapstructure:"app_id"`
	MerchantID string `json:"merchant_id" mapstructure:"merchant_id"`
	ClientKey  string `json:"client_key" mapstructure:"client_key"`
	HMACKey    string `json:"hmac_key" mapstructure:"hmac_key"`
}

type client struct {
	// baseURL is the base url of the gateway backend.
	baseURL string

	appID      string
	merchantID string

	// clientKey authenticates this service with the gateway.
	clientKey string

	// hmacKey signs request bodies.
	hmacKey string

	// accessToken is used to authenticate with the gateway backend.
	accessToken string

	// mu is used to lock access token.
	mu sync.Mutex

	// toggleTokenRefresher is used to notify token refresher to refresh token.
	toggleTokenRefresher chan struct{}

	// hc is the http client.
	hc *http.Client
}

func newClient(_ context.Context, c *ClientConfig) *client {
	return &client{
		baseURL:    c.BaseURL,
		appID:      c.AppID,
		merchantID: c.MerchantID,
		clientKey:  c.ClientKey,
		hmacKey:    c.HMACKey,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired runs an infinite loop that renews the access
// token on a period, and immediately when a request saw a 401, backing
// off exponentially between failed attempts.
func (c *client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

func (c *client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect authenticates with the gateway backend.
func (c *client) connect(ctx context.Context) (string, error) {
	nonce, err := nonceStr()
	if err != nil {
		return "", fmt.Errorf("wepay connect: nonce: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"merchantId":%q,"appId":%q,"clientKey":%q}`,
		nonce, c.merchantID, c.appID, c.clientKey)

	var reply struct {
		Code string `json:"code"`
		Data struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := c.call(ctx, "/api/partner/authenticate", body, false, &reply); err != nil {
		return "", fmt.Errorf("wepay connect: %w", err)
	}
	if reply.Code != "OK" {
		return "", fmt.Errorf("wepay connect: code %s: %s", reply.Code, reply.Message)
	}

	return fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken), nil
}

// call posts a signed JSON body and decodes the reply.
func (c *client) call(ctx context.Context, path, body string, authed bool, reply any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("http.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", hmac256([]byte(body), []byte(c.hmacKey)))
	if authed {
		req.Header.Set("Authorization", c.getAccessToken())
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("http.Do: %w", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		select {
		case c.toggleTokenRefresher <- struct{}{}:
		default:
		}
		return errors.New("unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(reply); err != nil {
		return fmt.Errorf("json.Decode: %w", err)
	}
	return nil
}
