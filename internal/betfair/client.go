// Package betfair is a minimal client for the Betfair exchange: certificate
// login and the read-only betting calls betbox exposes as tools.
package betfair

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default endpoints.
const (
	DefaultIdentityURL = "https://identitysso-cert.betfair.com"
	DefaultAPIURL      = "https://api.betfair.com"
)

const bettingPath = "/exchange/betting/rest/v1.0/"

// Config holds credentials and endpoints.
type Config struct {
	Username string
	Password string
	AppKey   string
	// CertDir holds the client certificate (*.crt) and key (*.key).
	CertDir string

	IdentityURL string
	APIURL      string
	Timeout     time.Duration

	// RequestsPerSecond limits betting calls. Zero means 5.
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the certificate-bearing client built from CertDir.
	HTTPClient *http.Client
}

// Client talks to the exchange. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
}

// New builds a client. Unless cfg.HTTPClient is set, the TLS client
// certificate is loaded from cfg.CertDir.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.AppKey == "" {
		return nil, errors.New("betfair: app key is required")
	}
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = DefaultIdentityURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		cert, err := LoadCertificate(cfg.CertDir)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{cert},
					MinVersion:   tls.VersionTLS12,
				},
			},
		}
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}, nil
}

// LoadCertificate loads the first *.crt / *.key pair found in dir.
func LoadCertificate(dir string) (tls.Certificate, error) {
	if dir == "" {
		return tls.Certificate{}, errors.New("betfair: cert path is required")
	}
	crt, err := firstMatch(dir, "*.crt")
	if err != nil {
		return tls.Certificate{}, err
	}
	key, err := firstMatch(dir, "*.key")
	if err != nil {
		return tls.Certificate{}, err
	}
	cert, err := tls.LoadX509KeyPair(crt, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("betfair: load certificate: %w", err)
	}
	return cert, nil
}

func firstMatch(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("betfair: glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("betfair: no %s file in %s", pattern, dir)
	}
	return matches[0], nil
}

type loginResponse struct {
	SessionToken string `json:"sessionToken"`
	LoginStatus  string `json:"loginStatus"`
}

// Login authenticates with the client certificate and stores the session
// token for later calls.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.IdentityURL, "/")+"/api/certlogin", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("betfair: build login request: %w", err)
	}
	req.Header.Set("X-Application", c.cfg.AppKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("betfair: login: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("betfair: read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &LoginError{Status: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var out loginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("betfair: decode login response: %w", err)
	}
	if out.LoginStatus != "SUCCESS" || out.SessionToken == "" {
		return &LoginError{Status: out.LoginStatus}
	}

	c.mu.Lock()
	c.token = out.SessionToken
	c.mu.Unlock()

	c.logger.Info("logged in to betfair", zap.String("username", c.cfg.Username))
	return nil
}

// SessionToken returns the current session token, empty before Login.
func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// ListEventTypes returns the sports with markets matching filter.
func (c *Client) ListEventTypes(ctx context.Context, filter MarketFilter) ([]EventTypeResult, error) {
	var out []EventTypeResult
	if err := c.call(ctx, "listEventTypes", filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCompetitions returns the competitions with markets matching filter.
func (c *Client) ListCompetitions(ctx context.Context, filter MarketFilter) ([]CompetitionResult, error) {
	var out []CompetitionResult
	if err := c.call(ctx, "listCompetitions", filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type bettingRequest struct {
	Filter MarketFilter `json:"filter"`
}

func (c *Client) call(ctx context.Context, op string, filter MarketFilter, out any) error {
	token := c.SessionToken()
	if token == "" {
		return fmt.Errorf("%s: %w", op, ErrNotLoggedIn)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("betfair: %s: rate limiter: %w", op, err)
	}

	payload, err := json.Marshal(bettingRequest{Filter: filter})
	if err != nil {
		return fmt.Errorf("betfair: encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.APIURL, "/")+bettingPath+op+"/", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("betfair: build %s request: %w", op, err)
	}
	req.Header.Set("X-Application", c.cfg.AppKey)
	req.Header.Set("X-Authentication", token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("betfair: %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("betfair: read %s response: %w", op, err)
	}
	c.logger.Debug("betfair call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		var fault faultBody
		if jerr := json.Unmarshal(body, &fault); jerr != nil {
			return &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		}
		return fault.apiError(resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("betfair: decode %s response: %w", op, err)
	}
	return nil
}
