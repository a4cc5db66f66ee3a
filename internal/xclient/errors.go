package xclient

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

const (
	errorMarker                     = `"errors"`
	errMessageEmptyResponse         = "empty response body"
	errMessageMissingCredentials    = "session credentials require both auth token and csrf token"
	errMessageMissingBearerToken    = "bearer token is required"
	errMessageUserNotFound          = "user lookup returned no id"
	errMessageUnexpectedEventType   = "direct message response did not confirm message creation"
	errMessageEmptyProfileUpdate    = "profile update has no fields"
	errMessageEmptyImage            = "image content is empty"
	errMessageEmptyScreenName       = "screen name cannot be empty"
	errMessageEmptyUserID           = "user id cannot be empty"
	errMessageEmptyTweetID          = "tweet id cannot be empty"
	errMessageEmptyText             = "text cannot be empty"
	errMessageRetriesExhausted      = "exhausted retries"
	apiErrorFormat                  = "api error %d: %s"
	apiErrorWithoutCodeFormat       = "api error: %s"
	statusErrorFormat               = "unexpected status %d: %s"
	unknownAPIErrorMessage          = "error during process"
	maxErrorBodySnippetLength       = 512
	errorBodySnippetTruncatedSuffix = "..."
)

var (
	// ErrEmptyResponse indicates the remote endpoint returned no body.
	ErrEmptyResponse = errors.New(errMessageEmptyResponse)
	// ErrMissingCredentials indicates the session lacks the auth cookie pair.
	ErrMissingCredentials = errors.New(errMessageMissingCredentials)
	// ErrMissingBearerToken indicates the web client bearer token was not configured.
	ErrMissingBearerToken = errors.New(errMessageMissingBearerToken)
	// ErrUserNotFound indicates a screen name lookup returned no account.
	ErrUserNotFound = errors.New(errMessageUserNotFound)
	// ErrUnexpectedEventType indicates a direct message response without a message_create event.
	ErrUnexpectedEventType = errors.New(errMessageUnexpectedEventType)
	// ErrEmptyProfileUpdate indicates that no profile field was supplied.
	ErrEmptyProfileUpdate = errors.New(errMessageEmptyProfileUpdate)
	// ErrEmptyImage indicates an image upload without content.
	ErrEmptyImage = errors.New(errMessageEmptyImage)

	errEmptyScreenName   = errors.New(errMessageEmptyScreenName)
	errEmptyUserID       = errors.New(errMessageEmptyUserID)
	errEmptyTweetID      = errors.New(errMessageEmptyTweetID)
	errEmptyText         = errors.New(errMessageEmptyText)
	errRetriesExhausted  = errors.New(errMessageRetriesExhausted)
	errorMarkerByteSlice = []byte(errorMarker)
)

// APIError is returned when a response body carries the "errors" marker.
type APIError struct {
	Code    int64
	Message string
	Body    string
}

func (apiError *APIError) Error() string {
	if apiError.Code != 0 {
		return fmt.Sprintf(apiErrorFormat, apiError.Code, apiError.Message)
	}
	return fmt.Sprintf(apiErrorWithoutCodeFormat, apiError.Message)
}

// StatusError is returned for non-2xx responses that do not carry an API error payload.
type StatusError struct {
	StatusCode int
	Body       string
}

func (statusError *StatusError) Error() string {
	return fmt.Sprintf(statusErrorFormat, statusError.StatusCode, statusError.Body)
}

// ContainsErrorMarker reports whether a raw response body carries the "errors" marker.
func ContainsErrorMarker(body []byte) bool {
	return bytes.Contains(body, errorMarkerByteSlice)
}

func newAPIError(body []byte) *APIError {
	message, messageErr := jsonparser.GetString(body, "errors", "[0]", "message")
	if messageErr != nil || message == "" {
		message = unknownAPIErrorMessage
	}
	code, _ := jsonparser.GetInt(body, "errors", "[0]", "code")
	return &APIError{Code: code, Message: message, Body: truncateBody(body)}
}

func truncateBody(body []byte) string {
	text := string(bytes.TrimSpace(body))
	if len(text) <= maxErrorBodySnippetLength {
		return text
	}
	return text[:maxErrorBodySnippetLength] + errorBodySnippetTruncatedSuffix
}
