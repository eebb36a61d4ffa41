package wgeasy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/ports/adapter"
)

var _ adapter.VPNServer = (*Client)(nil)

// Client toggles peers through the wg-easy web API. It logs in with the UI
// password and keeps the session cookie in a jar.
type Client struct {
	baseURL  string
	password string
	http     *http.Client

	mu       sync.Mutex
	loggedIn bool
	log      *zerolog.Logger
}

func NewClient(baseURL, password string, timeout time.Duration, logger *zerolog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("wg-easy url is empty")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "wgeasy").Logger()
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		password: password,
		http:     &http.Client{Timeout: timeout, Jar: jar},
		log:      &l,
	}, nil
}

type peer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("wg-easy %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("wg-easy %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("wg-easy %s %s: decode: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}
	if _, err := c.do(ctx, http.MethodPost, "/api/session", map[string]string{"password": c.password}, nil); err != nil {
		return err
	}
	c.loggedIn = true
	return nil
}

// call retries once after re-login when the session cookie has expired.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	code, err := c.do(ctx, method, path, body, out)
	if code == http.StatusUnauthorized {
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
		if err := c.login(ctx); err != nil {
			return err
		}
		_, err = c.do(ctx, method, path, body, out)
	}
	return err
}

func (c *Client) findPeer(ctx context.Context, name string) (*peer, error) {
	var peers []peer
	if err := c.call(ctx, http.MethodGet, "/api/wireguard/client", nil, &peers); err != nil {
		return nil, err
	}
	for i := range peers {
		if peers[i].Name == name {
			return &peers[i], nil
		}
	}
	return nil, fmt.Errorf("peer %q: %w", name, domain.ErrNotFound)
}

func (c *Client) toggle(ctx context.Context, name string, enable bool) error {
	p, err := c.findPeer(ctx, name)
	if err != nil {
		return err
	}
	if p.Enabled == enable {
		return nil
	}
	action := "disable"
	if enable {
		action = "enable"
	}
	if err := c.call(ctx, http.MethodPost, "/api/wireguard/client/"+p.ID+"/"+action, nil, nil); err != nil {
		return err
	}
	c.log.Info().Str("peer", name).Str("action", action).Msg("peer toggled")
	return nil
}

func (c *Client) EnableClient(ctx context.Context, name string) error {
	return c.toggle(ctx, name, true)
}

func (c *Client) DisableClient(ctx context.Context, name string) error {
	return c.toggle(ctx, name, false)
}
