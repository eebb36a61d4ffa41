package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	ScopeDriveReadonly  = "https://www.googleapis.com/auth/drive.readonly"
	ScopeSheetsReadonly = "https://www.googleapis.com/auth/spreadsheets.readonly"

	defaultBaseURL = "https://www.googleapis.com"
	sheetsBaseURL  = "https://sheets.googleapis.com"
)

// NewHTTPClient builds a service-account client. credentials is either the
// key JSON itself or a path to the key file.
func NewHTTPClient(ctx context.Context, credentials string, timeout time.Duration, scopes ...string) (*http.Client, error) {
	data, err := loadCredentials(credentials)
	if err != nil {
		return nil, err
	}
	conf, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	base := &http.Client{Timeout: timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	c := conf.Client(ctx)
	c.Timeout = timeout
	return c, nil
}

func loadCredentials(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("google credentials are empty")
	}
	if strings.HasPrefix(s, "{") {
		return []byte(s), nil
	}
	b, err := os.ReadFile(s)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	return b, nil
}

// apiError is the error envelope shared by Google REST APIs.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
		return fmt.Errorf("google api: %d %s", resp.StatusCode, ae.Error.Message)
	}
	return fmt.Errorf("google api: unexpected status %d", resp.StatusCode)
}

func getJSON(ctx context.Context, c *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
