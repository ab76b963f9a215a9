package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// LockWindow is how long after its marketing date a product stays locked
// for chat and marketing actions.
const LockWindow = 10 * 24 * time.Hour

// ProductSummary is one entry of the product catalogue list.
type ProductSummary struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	MarketingDate *time.Time `json:"marketing_date"`
}

// UnmarshalJSON accepts both the list shape (id/name/description/marketed_at)
// and the detail shape (product_id/product_name/product_description).
func (p *ProductSummary) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*p = ProductSummary{
		ID:            f.str("id", "product_id"),
		Name:          f.str("name", "product_name"),
		Description:   f.str("description", "product_description"),
		MarketingDate: f.time("marketing_date", "marketed_at", "marketingDate"),
	}
	return nil
}

// Lock describes whether a product is inside its lock window.
type Lock struct {
	Locked   bool `json:"locked"`
	DaysLeft int  `json:"days_left"`
}

// LockStatus computes the lock window for a marketing date at time now.
// A product with no marketing date is never locked.
func LockStatus(marketingDate *time.Time, now time.Time) Lock {
	if marketingDate == nil {
		return Lock{}
	}
	window := LockWindow.Hours() / 24
	diffDays := now.Sub(*marketingDate).Hours() / 24
	if diffDays < window {
		return Lock{Locked: true, DaysLeft: int(math.Ceil(window - diffDays))}
	}
	return Lock{}
}

// Lock returns the product's lock status at time now.
func (p ProductSummary) Lock(now time.Time) Lock {
	return LockStatus(p.MarketingDate, now)
}

// NewProduct is the payload for creating a product.
type NewProduct struct {
	Name        string  `json:"product_name"`
	Description string  `json:"product_description"`
	Location    string  `json:"location"`
	Category    string  `json:"product_category"`
	Price       float64 `json:"price"`
	Discount    float64 `json:"discount"`
}

// ProductDetail is the full product record. The backend returns arbitrary
// extra fields, so the record is kept as a generic object.
type ProductDetail map[string]any

// PrimaryFields are shown prominently and excluded from ExtraFields.
var PrimaryFields = []string{
	"product_name",
	"product_description",
	"price",
	"product_category",
	"location",
	"marketing_message",
}

// Field is a rendered key/value pair.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Name returns the product name.
func (d ProductDetail) Name() string { return d.text("product_name", "name") }

// MarketingMessage returns the stored marketing message, if any.
func (d ProductDetail) MarketingMessage() string { return d.text("marketing_message") }

// Organisation returns a displayable organisation name. The backend sends
// either an object or a bare id.
func (d ProductDetail) Organisation() string {
	v, ok := d["organisation"]
	if !ok || v == nil {
		return "N/A"
	}
	if m, ok := v.(map[string]any); ok {
		for _, k := range []string{"name", "org_name", "organisation_name"} {
			if s, ok := m[k].(string); ok && s != "" {
				return s
			}
		}
		b, _ := json.Marshal(m)
		return string(b)
	}
	return FormatValue("organisation", v)
}

// MarketingDate returns when the product was last marketed, or nil.
func (d ProductDetail) MarketingDate() *time.Time {
	for _, k := range []string{"marketing_date", "marketed_at", "marketingDate"} {
		if s, ok := d[k].(string); ok {
			if t, ok := ParseTime(s); ok {
				return &t
			}
		}
	}
	return nil
}

func (d ProductDetail) text(keys ...string) string {
	for _, k := range keys {
		if s, ok := d[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ExtraFields renders every non-empty field that is not a primary field,
// sorted by key.
func (d ProductDetail) ExtraFields() []Field {
	skip := make(map[string]bool, len(PrimaryFields)+1)
	for _, k := range PrimaryFields {
		skip[k] = true
	}
	skip["organisation"] = true

	keys := make([]string, 0, len(d))
	for k := range d {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		v := FormatValue(k, d[k])
		if v == "" {
			continue
		}
		out = append(out, Field{Key: k, Value: v})
	}
	return out
}

// FormatValue renders a detail value for display. Date-like keys are
// formatted as dates, nested values as indented JSON.
func FormatValue(key string, v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if t == "" {
			return ""
		}
		if isDateKey(key) {
			if ts, ok := ParseTime(t); ok {
				return ts.Format("January 2, 2006 03:04 PM")
			}
		}
		return t
	case map[string]any, []any:
		b, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	case float64:
		if t == math.Trunc(t) {
			return fmt.Sprintf("%.0f", t)
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}

func isDateKey(key string) bool {
	return strings.Contains(key, "date") || key == "created_at" || key == "updated_at"
}

// Analysis is the per-product analytics view.
type Analysis struct {
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}
