package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rcliao/automarket/internal/model"
)

// Endpoint paths relative to the API base URL.
const (
	PathLogin        = "/login_org"
	PathRegister     = "/create_org"
	PathCredibility  = "/info"
	PathProducts     = "/products"
	PathWriterChat   = "/writer_chat"
	PathFinalMessage = "/final_message"
)

// MsgInvalidLogin is shown when a login response carries no token and no
// server message.
const MsgInvalidLogin = "Invalid email or password"

// ProductPath returns the detail path of a product.
func ProductPath(id string) string {
	return "/products/" + url.PathEscape(id) + "/"
}

// API wraps the Client with one method per remote operation.
type API struct {
	c *Client
}

// NewAPI returns typed endpoint wrappers over c.
func NewAPI(c *Client) *API {
	return &API{c: c}
}

// Client returns the underlying gateway client.
func (a *API) Client() *Client { return a.c }

// LoginResult is a successful login.
type LoginResult struct {
	Token    string                     `json:"-"`
	Strategy string                     `json:"strategy"`
	Profile  *model.OrganisationProfile `json:"profile,omitempty"`
}

// Login exchanges credentials for a token.
func (a *API) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := map[string]string{"business_email": email, "password": password}
	raw, err := a.c.Post(ctx, PathLogin, body)
	if err != nil {
		return LoginResult{}, err
	}

	token, strategy, ok := extractToken(raw)
	if !ok {
		return LoginResult{}, &ApplicationError{
			Method:     http.MethodPost,
			Path:       PathLogin,
			StatusCode: http.StatusOK,
			Message:    serverMessage(raw, MsgInvalidLogin),
			Body:       truncate(raw),
		}
	}

	res := LoginResult{Token: token, Strategy: strategy}
	if p, ok := embeddedProfile(raw); ok {
		res.Profile = &p
	}
	return res, nil
}

// embeddedProfile decodes the organisation object some login responses
// include under org, organisation or data.
func embeddedProfile(raw []byte) (model.OrganisationProfile, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return model.OrganisationProfile{}, false
	}
	for _, key := range []string{"org", "organisation", "data"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		p, err := model.DecodeOrganisationProfile(v)
		if err == nil && !p.IsZero() {
			return p, true
		}
	}
	return model.OrganisationProfile{}, false
}

// RegisterRequest is the organisation sign-up payload.
type RegisterRequest struct {
	OrgName       string `json:"org_name"`
	BusinessEmail string `json:"business_email"`
	Website       string `json:"website"`
	Password      string `json:"password"`
}

// Register creates an organisation.
func (a *API) Register(ctx context.Context, r RegisterRequest) error {
	_, err := a.c.Post(ctx, PathRegister, r)
	return err
}

// Credibility holds the document and website scores.
type Credibility struct {
	PDFScore float64 `json:"p_score"`
	WebScore float64 `json:"web_score"`
}

// CheckCredibility uploads the credibility document together with the
// website URL. Both scores must be present and non-negative.
func (a *API) CheckCredibility(ctx context.Context, website, filename string, doc io.Reader) (Credibility, error) {
	raw, err := a.c.PostMultipart(ctx, PathCredibility,
		map[string]string{"website_url": website},
		FilePart{Field: "pdf", Filename: filename, Content: doc},
	)
	if err != nil {
		return Credibility{}, err
	}

	var scores struct {
		PDFScore *float64 `json:"p_score"`
		WebScore *float64 `json:"web_score"`
	}
	if err := json.Unmarshal(raw, &scores); err != nil {
		return Credibility{}, malformed(http.MethodPost, PathCredibility, raw, err)
	}
	if scores.PDFScore == nil || scores.WebScore == nil || *scores.PDFScore < 0 || *scores.WebScore < 0 {
		return Credibility{}, &ApplicationError{
			Method:     http.MethodPost,
			Path:       PathCredibility,
			StatusCode: http.StatusOK,
			Message:    serverMessage(raw, "Credibility check failed"),
			Body:       truncate(raw),
		}
	}
	return Credibility{PDFScore: *scores.PDFScore, WebScore: *scores.WebScore}, nil
}

// Products returns the whole catalogue. Both a bare array and a
// {"results": [...]} envelope are accepted.
func (a *API) Products(ctx context.Context) ([]model.ProductSummary, error) {
	raw, err := a.c.Get(ctx, PathProducts)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var list []model.ProductSummary
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, malformed(http.MethodGet, PathProducts, raw, err)
		}
		return list, nil
	}
	var env struct {
		Results []model.ProductSummary `json:"results"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformed(http.MethodGet, PathProducts, raw, err)
	}
	return env.Results, nil
}

// Product returns one product record.
func (a *API) Product(ctx context.Context, id string) (model.ProductDetail, error) {
	path := ProductPath(id)
	raw, err := a.c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	var d model.ProductDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, malformed(http.MethodGet, path, raw, err)
	}
	return d, nil
}

// DeleteProduct removes a product. Callers confirm with the user first.
func (a *API) DeleteProduct(ctx context.Context, id string) error {
	_, err := a.c.Delete(ctx, ProductPath(id))
	return err
}

// AddProduct creates a product and returns the stored record, which may be
// empty when the server answers without a body.
func (a *API) AddProduct(ctx context.Context, p model.NewProduct) (model.ProductDetail, error) {
	raw, err := a.c.Post(ctx, PathProducts+"/", p)
	if err != nil {
		return nil, err
	}
	d := model.ProductDetail{}
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, malformed(http.MethodPost, PathProducts+"/", raw, err)
	}
	return d, nil
}

// Analysis returns the analytics summary of a product.
func (a *API) Analysis(ctx context.Context, id string) (model.Analysis, error) {
	path := ProductPath(id) + "analysis/"
	raw, err := a.c.Get(ctx, path)
	if err != nil {
		return model.Analysis{}, err
	}
	var an model.Analysis
	if err := json.Unmarshal(raw, &an); err != nil {
		return model.Analysis{}, malformed(http.MethodGet, path, raw, err)
	}
	return an, nil
}

// WriterChat opens the rewriting stream for a draft. The returned body
// carries data: frames and must be closed by the caller.
func (a *API) WriterChat(ctx context.Context, productID, text string) (io.ReadCloser, error) {
	return a.c.Stream(ctx, PathWriterChat, map[string]string{"product_id": productID, "text": text})
}

// ConfirmFinal finalizes the message last produced for a product and
// returns the server status.
func (a *API) ConfirmFinal(ctx context.Context, productID string) (string, error) {
	raw, err := a.c.Post(ctx, PathFinalMessage, map[string]string{"product_id": productID})
	if err != nil {
		return "", err
	}
	var resp struct {
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", malformed(http.MethodPost, PathFinalMessage, raw, err)
	}
	var s string
	if err := json.Unmarshal(resp.Status, &s); err == nil {
		return s, nil
	}
	return strings.TrimSpace(string(resp.Status)), nil
}

func malformed(method, path string, raw []byte, err error) *ApplicationError {
	return &ApplicationError{
		Method:     method,
		Path:       path,
		StatusCode: http.StatusOK,
		Message:    "Unexpected response from server",
		Body:       truncate(raw),
		Err:        fmt.Errorf("decode response: %w", err),
	}
}

func truncate(raw []byte) string {
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	return string(raw)
}
