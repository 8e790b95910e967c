package leadads

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/wolfman30/autolead-ai-platform/internal/channels/meta"
)

const leadFields = "id,created_time,ad_id,adset_id,campaign_id,form_id,field_data"

// Client reads lead submissions from the Graph API with a page token.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, pageAccessToken string) *Client {
	return &Client{http: meta.NewGraphClient(baseURL, pageAccessToken)}
}

// FetchLead loads the answers of a leadgen submission.
func (c *Client) FetchLead(ctx context.Context, leadgenID string) (*LeadDetails, error) {
	var (
		out     LeadDetails
		errBody meta.ErrorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("fields", leadFields).
		SetResult(&out).
		SetError(&errBody).
		Get("/" + leadgenID)
	if err != nil {
		return nil, fmt.Errorf("leadads: fetch lead %s: %w", leadgenID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("leadads: fetch lead %s: %w", leadgenID, meta.AsError(resp, &errBody))
	}
	return &out, nil
}
