// Package model defines the client-side data types shared by the session,
// gateway, synchronizers and views.
package model

import (
	"encoding/json"
	"time"
)

// OrganisationProfile is the organisation record held by the session.
// It is set once after login or registration and never mutated afterwards.
type OrganisationProfile struct {
	Name          string     `json:"name"`
	BusinessEmail string     `json:"business_email"`
	Website       string     `json:"website"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	PlanTier      string     `json:"plan_tier"`
	PlanStatus    string     `json:"plan_status"`
	Usage         Usage      `json:"usage"`
}

// Usage holds the organisation's usage counters.
type Usage struct {
	CampaignsUsed   int64 `json:"campaigns_used"`
	CampaignsLimit  int64 `json:"campaigns_limit"`
	Contacts        int64 `json:"contacts"`
	EmailsThisMonth int64 `json:"emails_this_month"`
}

// Plan defaults shown when the backend omits plan data.
const (
	DefaultPlanTier   = "Starter"
	DefaultPlanStatus = "Trial"
)

// CampaignsUsagePercent returns used/limit as a percentage capped at 100.
func (u Usage) CampaignsUsagePercent() float64 {
	if u.CampaignsLimit <= 0 {
		return 0
	}
	p := float64(u.CampaignsUsed) / float64(u.CampaignsLimit) * 100
	if p > 100 {
		return 100
	}
	return p
}

// DecodeOrganisationProfile reads a profile from a server payload, accepting
// the alternate field names different backend versions have used.
func DecodeOrganisationProfile(data []byte) (OrganisationProfile, error) {
	f, err := decodeFields(data)
	if err != nil {
		return OrganisationProfile{}, err
	}
	p := OrganisationProfile{
		Name:          f.str("org_name", "name", "organisation_name"),
		BusinessEmail: f.str("business_email", "email"),
		Website:       f.str("website", "website_url"),
		CreatedAt:     f.time("created_at", "createdAt", "registered_at"),
		PlanTier:      f.str("plan_name", "plan_tier"),
		PlanStatus:    f.str("plan_status"),
	}
	if p.PlanTier == "" {
		p.PlanTier = DefaultPlanTier
	}
	if p.PlanStatus == "" {
		p.PlanStatus = DefaultPlanStatus
	}
	p.Usage.CampaignsUsed, _ = f.num("campaigns_used")
	p.Usage.CampaignsLimit, _ = f.num("campaigns_limit")
	p.Usage.Contacts, _ = f.num("contacts_count", "contacts")
	p.Usage.EmailsThisMonth, _ = f.num("emails_this_month")
	return p, nil
}

// IsZero reports whether no identifying field is set.
func (p OrganisationProfile) IsZero() bool {
	return p.Name == "" && p.BusinessEmail == "" && p.Website == ""
}

// MarshalStored encodes the profile for local storage.
func (p OrganisationProfile) MarshalStored() (string, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

// UnmarshalStoredProfile decodes a profile written by MarshalStored.
func UnmarshalStoredProfile(s string) (OrganisationProfile, error) {
	var p OrganisationProfile
	err := json.Unmarshal([]byte(s), &p)
	return p, err
}
