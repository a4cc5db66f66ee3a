package xclient

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultWebBaseURLString      = "https://twitter.com"
	defaultAPIBaseURLString      = "https://api.twitter.com"
	defaultUserAgentValue        = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.846.0 Safari/537.36"
	defaultClientLanguage        = "en"
	defaultRequestsPerSecond     = 2.0
	defaultRequestBurst          = 1
	defaultMaxAttempts           = 4
	defaultBackoffBase           = 500 * time.Millisecond
	defaultBackoffCap            = 8 * time.Second
	defaultRateLimitWait         = 20 * time.Second
	defaultDialTimeout           = 5 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultResponseHeaderTimeout = 15 * time.Second
	defaultHTTPTimeout           = 30 * time.Second
	errMessageParseWebBaseURL    = "parse web base url"
	errMessageParseAPIBaseURL    = "parse api base url"
)

// Credentials identifies the authenticated web session of one account.
type Credentials struct {
	Username  string
	AuthToken string
	CSRFToken string
}

// Config customizes a Client instance.
type Config struct {
	WebBaseURL        string
	APIBaseURL        string
	BearerToken       string
	Credentials       Credentials
	UserAgent         string
	Client            *http.Client
	RequestsPerSecond float64
	MaxAttempts       int
	BackoffBase       time.Duration
	Logger            *zap.Logger
}

// Client issues authenticated requests against the web client endpoints for one account.
type Client struct {
	httpClient  *http.Client
	webBaseURL  *url.URL
	apiBaseURL  *url.URL
	bearerToken string
	credentials Credentials
	userAgent   string
	limiter     *rate.Limiter
	maxAttempts int
	backoffBase time.Duration
	logger      *zap.Logger
}

// NewClient constructs a Client from configuration values.
func NewClient(configuration Config) (*Client, error) {
	if strings.TrimSpace(configuration.BearerToken) == "" {
		return nil, ErrMissingBearerToken
	}
	if strings.TrimSpace(configuration.Credentials.AuthToken) == "" || strings.TrimSpace(configuration.Credentials.CSRFToken) == "" {
		return nil, ErrMissingCredentials
	}

	webBaseURL, err := parseBaseURL(configuration.WebBaseURL, defaultWebBaseURLString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageParseWebBaseURL, err)
	}
	apiBaseURL, err := parseBaseURL(configuration.APIBaseURL, defaultAPIBaseURLString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageParseAPIBaseURL, err)
	}

	httpClient := configuration.Client
	if httpClient == nil {
		httpClient = newHTTPClient()
	}

	userAgent := strings.TrimSpace(configuration.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgentValue
	}

	maxAttempts := configuration.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoffBase := configuration.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}

	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &Client{
		httpClient:  httpClient,
		webBaseURL:  webBaseURL,
		apiBaseURL:  apiBaseURL,
		bearerToken: strings.TrimSpace(configuration.BearerToken),
		credentials: configuration.Credentials,
		userAgent:   userAgent,
		limiter:     newRequestLimiter(configuration.RequestsPerSecond),
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger.With(zap.String(logFieldAccount, configuration.Credentials.Username)),
	}
	return client, nil
}

// Username reports the account name the session acts for.
func (client *Client) Username() string {
	return client.credentials.Username
}

func (client *Client) webURL(path string, query url.Values) string {
	return buildURL(client.webBaseURL, path, query)
}

func (client *Client) apiURL(path string, query url.Values) string {
	return buildURL(client.apiBaseURL, path, query)
}

func buildURL(baseURL *url.URL, path string, query url.Values) string {
	resolved := baseURL.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		resolved.RawQuery = query.Encode()
	}
	return resolved.String()
}

func parseBaseURL(value string, fallback string) (*url.URL, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = fallback
	}
	return url.Parse(strings.TrimRight(trimmed, "/"))
}

func newRequestLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond < 0 {
		return rate.NewLimiter(rate.Inf, defaultRequestBurst)
	}
	if requestsPerSecond == 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), defaultRequestBurst)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   defaultHTTPTimeout,
		Transport: defaultTransport(),
	}
}

func defaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxConnsPerHost:       10,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
}
