package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/wolfman30/autolead-ai-platform/internal/channels/meta"
)

// ErrNoMessageID is returned when the API accepted a send but returned no id.
var ErrNoMessageID = errors.New("whatsapp: send response without message id")

// Client sends messages through the Cloud API for one business number.
type Client struct {
	http          *resty.Client
	phoneNumberID string
}

// NewClient creates a Cloud API client. baseURL defaults to the public Graph API.
func NewClient(baseURL, accessToken, phoneNumberID string) *Client {
	return &Client{
		http:          meta.NewGraphClient(baseURL, accessToken),
		phoneNumberID: phoneNumberID,
	}
}

// SendText sends a plain text message to an E.164 phone and returns the
// provider message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	req := sendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimPrefix(strings.TrimSpace(to), "+"),
		Type:             "text",
	}
	req.Text.Body = body

	var (
		out     SendResponse
		errBody meta.ErrorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&errBody).
		Post("/" + c.phoneNumberID + "/messages")
	if err != nil {
		return "", fmt.Errorf("whatsapp: send message: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("whatsapp: send message: %w", meta.AsError(resp, &errBody))
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", ErrNoMessageID
	}
	return out.Messages[0].ID, nil
}

// MarkRead marks an inbound message as read, which also shows the blue ticks.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	var errBody meta.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(markReadRequest{MessagingProduct: "whatsapp", Status: "read", MessageID: messageID}).
		SetError(&errBody).
		Post("/" + c.phoneNumberID + "/messages")
	if err != nil {
		return fmt.Errorf("whatsapp: mark read: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("whatsapp: mark read: %w", meta.AsError(resp, &errBody))
	}
	return nil
}
