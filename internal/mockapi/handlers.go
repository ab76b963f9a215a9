package mockapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxBody caps JSON request bodies.
const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed JSON body."})
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"business_email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok || acct.Password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid email or password"})
		return
	}

	token := s.IssueToken(acct.Email)
	org := map[string]any{
		"org_name":        acct.OrgName,
		"business_email":  acct.Email,
		"website":         acct.Website,
		"created_at":      acct.Created.UTC().Format(time.RFC3339),
		"plan_name":       "Starter",
		"plan_status":     "Trial",
		"campaigns_used":  2,
		"campaigns_limit": 10,
		"contacts_count":  1250,
	}

	resp := map[string]any{"org": org}
	if s.opts.TokenField == "data.token" {
		resp["data"] = map[string]string{"token": token}
	} else {
		resp[s.opts.TokenField] = token
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgName  string `json:"org_name"`
		Email    string `json:"business_email"`
		Website  string `json:"website"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrgName == "" || req.Email == "" || req.Website == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "All fields are required."})
		return
	}

	key := strings.ToLower(req.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[key]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Organisation already exists."})
		return
	}
	s.accounts[key] = account{
		OrgName:  req.OrgName,
		Email:    key,
		Website:  req.Website,
		Password: req.Password,
		Created:  s.opts.Now(),
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleCredibility(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Expected multipart form data."})
		return
	}
	website := r.FormValue("website_url")
	file, header, err := r.FormFile("pdf")
	if website == "" || err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "website_url and pdf are required."})
		return
	}
	defer file.Close()
	n, _ := io.Copy(io.Discard, file)

	// Scores are deterministic so tests can assert them.
	pScore := 0.5
	if n > 0 && strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		pScore = 0.9
	}
	webScore := 0.6
	if strings.HasPrefix(website, "https://") {
		webScore = 0.8
	}
	writeJSON(w, http.StatusOK, map[string]float64{"p_score": pScore, "web_score": webScore})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		p := s.products[id]
		list = append(list, map[string]any{
			"id":          id,
			"name":        p["product_name"],
			"description": p["product_description"],
			"marketed":    p["marketed_at"] != nil,
			"marketed_at": p["marketed_at"],
		})
	}
	s.mu.Unlock()

	if s.opts.Envelope {
		writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "results": list})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"product_name"`
		Description string  `json:"product_description"`
		Location    string  `json:"location"`
		Category    string  `json:"product_category"`
		Price       float64 `json:"price"`
		Discount    float64 `json:"discount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Description == "" || req.Price <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid product."})
		return
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	p := map[string]any{
		"product_name":        req.Name,
		"product_description": req.Description,
		"product_category":    req.Category,
		"location":            req.Location,
		"price":               req.Price,
		"discount":            req.Discount,
		"marketing_message":   "",
		"marketed_at":         nil,
		"created_at":          s.opts.Now().UTC().Format(time.RFC3339),
		"organisation":        map[string]any{"org_name": DemoOrg},
	}
	s.products[id] = p
	s.order = append(s.order, id)
	out := withID(id, p)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func withID(id int, p map[string]any) map[string]any {
	out := make(map[string]any, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out["id"] = id
	return out
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (int, map[string]any, bool) {
	id, ok := productID(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return 0, nil, false
	}
	s.mu.Lock()
	p, ok := s.products[id]
	var out map[string]any
	if ok {
		out = withID(id, p)
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return 0, nil, false
	}
	return id, out, true
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	if _, p, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.products, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id, p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	name, _ := p["product_name"].(string)
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": fmt.Sprintf("%s reaches %d contacts with steady engagement.", name, 100*id),
		"insights": []string{
			"Most opens happen within two hours of sending.",
			"Mobile readers click twice as often as desktop readers.",
		},
		"recommendations": []string{
			"Send campaigns in the morning.",
			"Shorten the subject line.",
		},
	})
}

// RewritePrefix starts every rewritten message.
const RewritePrefix = "✨ Optimized version: "

// RewriteTokens splits the rewrite of text into the tokens streamed by
// writer_chat. Concatenating them yields the full rewrite.
func RewriteTokens(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	return strings.SplitAfter(RewritePrefix+text, " ")
}

func (s *Server) handleWriterChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Text      string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Text is required."})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var full strings.Builder
	for _, tok := range RewriteTokens(req.Text) {
		if s.opts.TokenDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(s.opts.TokenDelay):
			}
		}
		if r.Context().Err() != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", tok); err != nil {
			return
		}
		flusher.Flush()
		full.WriteString(tok)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	s.mu.Lock()
	s.finals[req.ProductID] = full.String()
	s.mu.Unlock()
}

func (s *Server) handleFinalMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID json.RawMessage `json:"product_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	pid := rawID(req.ProductID)

	s.mu.Lock()
	msg, ok := s.finals[pid]
	if ok {
		delete(s.finals, pid)
		s.sent[pid] = msg
		if id, err := strconv.Atoi(pid); err == nil {
			if p, exists := s.products[id]; exists {
				p["marketing_message"] = msg
				p["marketed_at"] = s.opts.Now().UTC().Format(time.RFC3339)
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "No message to send for this product."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "id": uuid.NewString()})
}

// rawID accepts a product id sent as a JSON string or number.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
