package meta

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultGraphAPIBase = "https://graph.facebook.com/v21.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// NewGraphClient returns a resty client authenticated against the Graph API.
func NewGraphClient(baseURL, accessToken string) *resty.Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultGraphAPIBase
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(defaultHTTPTimeout)
}

// ErrorResponse is the Graph API error body.
type ErrorResponse struct {
	Error *APIError `json:"error,omitempty"`
}

// APIError is returned for non-2xx Graph responses.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
	Status    int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error %d (http %d): %s", e.Code, e.Status, e.Message)
}

// AsError converts a failed resty response into an *APIError.
func AsError(resp *resty.Response, body *ErrorResponse) error {
	if body != nil && body.Error != nil {
		body.Error.Status = resp.StatusCode()
		return body.Error
	}
	return &APIError{Status: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
}
