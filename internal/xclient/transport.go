package xclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	headerAuthorization       = "Authorization"
	headerCSRFToken           = "X-Csrf-Token"
	headerAuthType            = "X-Twitter-Auth-Type"
	headerActiveUser          = "X-Twitter-Active-User"
	headerClientLanguage      = "X-Twitter-Client-Language"
	headerContentType         = "Content-Type"
	headerCookie              = "Cookie"
	headerUserAgent           = "User-Agent"
	headerRetryAfter          = "Retry-After"
	headerRateLimitReset      = "X-Rate-Limit-Reset"
	authTypeOAuth2Session     = "OAuth2Session"
	activeUserYes             = "yes"
	bearerPrefix              = "Bearer "
	cookieFormat              = "ct0=%s; auth_token=%s"
	contentTypeJSON           = "application/json"
	contentTypeForm           = "application/x-www-form-urlencoded"
	maxResponseBodyBytes      = 16 * 1024 * 1024
	logMessageRequest         = "api request"
	logMessageRateLimited     = "rate limited; waiting before retry"
	logMessageServerError     = "server error; retrying"
	logMessageTransportError  = "transport error; retrying"
	logFieldAccount           = "account"
	logFieldMethod            = "method"
	logFieldURL               = "url"
	logFieldStatus            = "status"
	logFieldAttempt           = "attempt"
	logFieldWait              = "wait"
	logFieldError             = "error"
	minimumRateLimitResetWait = 2 * time.Second
)

type apiRequest struct {
	method      string
	endpoint    string
	body        []byte
	contentType string
}

// do sends the request with session headers, retrying 429 and 5xx responses.
// 2xx bodies carrying the error marker are returned together with an *APIError.
func (client *Client) do(ctx context.Context, request apiRequest) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= client.maxAttempts; attempt++ {
		if waitErr := client.limiter.Wait(ctx); waitErr != nil {
			return nil, waitErr
		}

		httpRequest, err := client.newHTTPRequest(ctx, request)
		if err != nil {
			return nil, err
		}
		client.logger.Debug(logMessageRequest,
			zap.String(logFieldMethod, request.method),
			zap.String(logFieldURL, request.endpoint),
			zap.Int(logFieldAttempt, attempt))

		httpResponse, err := client.httpClient.Do(httpRequest)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			wait := client.exponentialBackoff(attempt)
			client.logger.Warn(logMessageTransportError, zap.Error(err), zap.Int(logFieldAttempt, attempt), zap.Duration(logFieldWait, wait))
			if sleepErr := sleepContext(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseBodyBytes))
		httpResponse.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		switch {
		case httpResponse.StatusCode == http.StatusTooManyRequests:
			lastErr = &StatusError{StatusCode: httpResponse.StatusCode, Body: truncateBody(body)}
			wait := rateLimitWait(httpResponse.Header, time.Now())
			client.logger.Warn(logMessageRateLimited, zap.Int(logFieldAttempt, attempt), zap.Duration(logFieldWait, wait))
			if sleepErr := sleepContext(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		case httpResponse.StatusCode >= http.StatusInternalServerError:
			lastErr = &StatusError{StatusCode: httpResponse.StatusCode, Body: truncateBody(body)}
			wait := client.exponentialBackoff(attempt)
			client.logger.Warn(logMessageServerError, zap.Int(logFieldStatus, httpResponse.StatusCode), zap.Int(logFieldAttempt, attempt), zap.Duration(logFieldWait, wait))
			if sleepErr := sleepContext(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		return interpretResponse(httpResponse.StatusCode, body)
	}

	if lastErr == nil {
		lastErr = errRetriesExhausted
	}
	return nil, lastErr
}

func interpretResponse(statusCode int, body []byte) ([]byte, error) {
	if ContainsErrorMarker(body) {
		return body, newAPIError(body)
	}
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return body, &StatusError{StatusCode: statusCode, Body: truncateBody(body)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyResponse
	}
	return body, nil
}

func (client *Client) newHTTPRequest(ctx context.Context, request apiRequest) (*http.Request, error) {
	var bodyReader io.Reader
	if request.body != nil {
		bodyReader = bytes.NewReader(request.body)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, request.method, request.endpoint, bodyReader)
	if err != nil {
		return nil, err
	}
	client.applySessionHeaders(httpRequest.Header)
	if request.contentType != "" {
		httpRequest.Header.Set(headerContentType, request.contentType)
	}
	return httpRequest, nil
}

func (client *Client) applySessionHeaders(header http.Header) {
	header.Set(headerUserAgent, client.userAgent)
	header.Set(headerAuthorization, bearerPrefix+client.bearerToken)
	header.Set(headerAuthType, authTypeOAuth2Session)
	header.Set(headerCSRFToken, client.credentials.CSRFToken)
	header.Set(headerActiveUser, activeUserYes)
	header.Set(headerClientLanguage, defaultClientLanguage)
	header.Set(headerCookie, fmt.Sprintf(cookieFormat, client.credentials.CSRFToken, client.credentials.AuthToken))
}

func (client *Client) exponentialBackoff(attempt int) time.Duration {
	wait := client.backoffBase << uint(attempt-1)
	if wait <= 0 || wait > defaultBackoffCap {
		wait = defaultBackoffCap
	}
	return wait
}

// rateLimitWait prefers Retry-After seconds, then the x-rate-limit-reset epoch.
func rateLimitWait(header http.Header, now time.Time) time.Duration {
	if retryAfter := strings.TrimSpace(header.Get(headerRetryAfter)); retryAfter != "" {
		if seconds, parseErr := strconv.Atoi(retryAfter); parseErr == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	if reset := strings.TrimSpace(header.Get(headerRateLimitReset)); reset != "" {
		if unixSeconds, parseErr := strconv.ParseInt(reset, 10, 64); parseErr == nil {
			wait := time.Unix(unixSeconds, 0).Sub(now)
			if wait < minimumRateLimitResetWait {
				wait = minimumRateLimitResetWait
			}
			return wait
		}
	}
	return defaultRateLimitWait
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsAPIError reports whether err carries an *APIError.
func IsAPIError(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError)
}
