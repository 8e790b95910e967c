// Package leadads handles Facebook Lead Ads "leadgen" webhooks: the change
// payload and the Graph lookup of the submitted form.
package leadads

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldLeadgen is the webhook field for new lead form submissions.
const FieldLeadgen = "leadgen"

// LeadgenValue is the value of a "leadgen" change. It only references the
// submission; the answers come from FetchLead.
type LeadgenValue struct {
	LeadgenID   string `json:"leadgen_id"`
	PageID      string `json:"page_id"`
	FormID      string `json:"form_id"`
	AdID        string `json:"ad_id"`
	AdgroupID   string `json:"adgroup_id"`
	CreatedTime int64  `json:"created_time"`
}

// DecodeValue decodes and checks a leadgen change value.
func DecodeValue(raw json.RawMessage) (LeadgenValue, error) {
	var v LeadgenValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return LeadgenValue{}, fmt.Errorf("leadads: decode change value: %w", err)
	}
	if strings.TrimSpace(v.LeadgenID) == "" {
		return LeadgenValue{}, fmt.Errorf("leadads: change without leadgen_id")
	}
	return v, nil
}

// FieldDatum is one answered question of the lead form.
type FieldDatum struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// LeadDetails is the Graph representation of a submitted lead.
type LeadDetails struct {
	ID          string       `json:"id"`
	CreatedTime string       `json:"created_time"`
	AdID        string       `json:"ad_id"`
	AdsetID     string       `json:"adset_id"`
	CampaignID  string       `json:"campaign_id"`
	FormID      string       `json:"form_id"`
	FieldData   []FieldDatum `json:"field_data"`
}

// Field returns the first value of the first matching question name.
func (d LeadDetails) Field(names ...string) string {
	for _, name := range names {
		for _, f := range d.FieldData {
			if strings.EqualFold(f.Name, name) && len(f.Values) > 0 {
				if v := strings.TrimSpace(f.Values[0]); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// FullName joins the standard name questions.
func (d LeadDetails) FullName() string {
	if full := d.Field("full_name", "nombre_completo"); full != "" {
		return full
	}
	return strings.TrimSpace(d.Field("first_name", "nombre") + " " + d.Field("last_name", "apellidos"))
}

// Phone returns the raw phone answer.
func (d LeadDetails) Phone() string { return d.Field("phone_number", "telefono", "phone") }

// Email returns the email answer, lower-cased.
func (d LeadDetails) Email() string { return strings.ToLower(d.Field("email", "correo")) }
