// Package mockapi is an in-memory backend that speaks the same wire
// protocol as the remote API. It backs `automarket mock-server` and the
// HTTP tests of the client packages.
package mockapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Demo account seeded by default.
const (
	DemoEmail    = "demo@automarket.dev"
	DemoPassword = "demo1234"
	DemoOrg      = "Automarket Demo"
)

// Options configures the mock.
type Options struct {
	// Products is the size of the seeded catalogue.
	Products int
	// TokenField selects where login puts the token: token, access,
	// access_token, key or data.token.
	TokenField string
	// Envelope wraps the product list as {"results": [...]}.
	Envelope bool
	// TokenDelay pauses between streamed tokens.
	TokenDelay time.Duration
	// Now is the clock used for seeding and timestamps.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Products < 0 {
		o.Products = 0
	}
	if o.TokenField == "" {
		o.TokenField = "token"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// RecordedRequest is what the mock saw of one request.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

type account struct {
	OrgName  string
	Email    string
	Website  string
	Password string
	Created  time.Time
}

// Server holds the mock state. It is safe for concurrent use.
type Server struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	accounts map[string]account
	tokens   map[string]string // token -> email
	products map[int]map[string]any
	order    []int
	nextID   int
	finals   map[string]string // product id -> last rewritten message
	sent     map[string]string // product id -> confirmed message
	requests []RecordedRequest
}

// New creates a seeded mock.
func New(opts Options, logger zerolog.Logger) *Server {
	opts.defaults()
	s := &Server{
		opts:     opts,
		log:      logger,
		accounts: map[string]account{},
		tokens:   map[string]string{},
		products: map[int]map[string]any{},
		finals:   map[string]string{},
		sent:     map[string]string{},
	}
	s.accounts[DemoEmail] = account{
		OrgName:  DemoOrg,
		Email:    DemoEmail,
		Website:  "https://automarket.dev",
		Password: DemoPassword,
		Created:  opts.Now().AddDate(0, -2, 0),
	}
	s.seed(opts.Products)
	return s
}

// seed fills the catalogue; every fourth product was marketed id days ago.
func (s *Server) seed(n int) {
	now := s.opts.Now()
	for id := 1; id <= n; id++ {
		var marketed any
		if id%4 == 0 {
			marketed = now.Add(-time.Duration(id) * 24 * time.Hour).UTC().Format(time.RFC3339)
		}
		s.products[id] = map[string]any{
			"product_name":        fmt.Sprintf("Product %d", id),
			"product_description": fmt.Sprintf("Short description for Product %d.", id),
			"product_category":    "General",
			"location":            "Online",
			"price":               float64(10 * id),
			"discount":            float64(0),
			"marketing_message":   "",
			"marketed_at":         marketed,
			"created_at":          now.AddDate(0, 0, -30).UTC().Format(time.RFC3339),
			"organisation":        map[string]any{"org_name": DemoOrg},
		}
		s.order = append(s.order, id)
	}
	s.nextID = n + 1
}

// Handler returns the router. Every endpoint lives under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.record)
	r.Use(s.accessLog)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login_org", s.handleLogin)
		r.Post("/create_org", s.handleRegister)
		r.Post("/info", s.handleCredibility)

		r.Group(func(r chi.Router) {
			r.Use(s.requireBearer)
			r.Get("/products", s.handleListProducts)
			r.Post("/products/", s.handleAddProduct)
			r.Get("/products/{id}/", s.handleGetProduct)
			r.Delete("/products/{id}/", s.handleDeleteProduct)
			r.Get("/products/{id}/analysis/", s.handleAnalysis)
			r.Post("/writer_chat", s.handleWriterChat)
			r.Post("/final_message", s.handleFinalMessage)
		})
	})
	return r
}

// Requests returns a copy of every request seen so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// Sent returns the confirmed message of a product.
func (s *Server) Sent(productID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.sent[productID]
	return msg, ok
}

// IssueToken logs email in without a password, for tests.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := uuid.NewString()
	s.tokens[tok] = email
	return tok
}

// RevokeAll drops every issued token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]string{}
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get(chiMiddleware.RequestIDHeader),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		ev := s.log.Info()
		switch status := ww.Status(); {
		case status >= 500:
			ev = s.log.Error()
		case status >= 400:
			ev = s.log.Warn()
		}
		ev.Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes_out", ww.BytesWritten()).
			Dur("latency", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		s.mu.Lock()
		_, known := s.tokens[token]
		s.mu.Unlock()
		if !known {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func productID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil
}
