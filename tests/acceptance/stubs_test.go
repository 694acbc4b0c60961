package acceptance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/prperemyshlev/photo-enhancer/internal/checkout"
	"github.com/prperemyshlev/photo-enhancer/internal/enhancer"
)

// stripeStub serves the two checkout session endpoints the client uses
type stripeStub struct {
	server *httptest.Server

	mu       sync.Mutex
	seq      int
	sessions map[string]*stubSession
}

type stubSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent,omitempty"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`

	unitAmount string
	quantity   string
}

func newStripeStub() *stripeStub {
	s := &stripeStub{sessions: make(map[string]*stubSession)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/checkout/sessions", s.create)
	mux.HandleFunc("GET /v1/checkout/sessions/{id}", s.retrieve)
	s.server = httptest.NewServer(mux)

	return s
}

func (s *stripeStub) URL() string { return s.server.URL }

func (s *stripeStub) Close() { s.server.Close() }

func (s *stripeStub) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*stubSession)
}

func (s *stripeStub) create(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer sk_test_") {
		writeStubError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeStubError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := fmt.Sprintf("cs_test_%04d", s.seq)

	metadata := map[string]string{}
	for key, values := range r.PostForm {
		if name, ok := strings.CutPrefix(key, "metadata["); ok {
			metadata[strings.TrimSuffix(name, "]")] = values[0]
		}
	}

	session := &stubSession{
		ID:            id,
		URL:           "https://checkout.example.test/pay/" + id,
		Status:        checkout.SessionStatusOpen,
		PaymentStatus: checkout.PaymentStatusUnpaid,
		Currency:      r.PostForm.Get("line_items[0][price_data][currency]"),
		Metadata:      metadata,
		unitAmount:    r.PostForm.Get("line_items[0][price_data][unit_amount]"),
		quantity:      r.PostForm.Get("line_items[0][quantity]"),
	}
	var unit, qty int64
	_, _ = fmt.Sscan(session.unitAmount, &unit)
	_, _ = fmt.Sscan(session.quantity, &qty)
	session.AmountTotal = unit * qty

	s.sessions[id] = session
	writeStubJSON(w, http.StatusOK, session)
}

func (s *stripeStub) retrieve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[r.PathValue("id")]
	if !ok {
		writeStubError(w, http.StatusNotFound, "No such checkout.session")
		return
	}
	writeStubJSON(w, http.StatusOK, session)
}

// markPaid settles a session the way the hosted page would
func (s *stripeStub) markPaid(id string) *stubSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	session.Status = checkout.SessionStatusComplete
	session.PaymentStatus = checkout.PaymentStatusPaid
	session.PaymentIntent = "pi_" + strings.TrimPrefix(id, "cs_")

	copied := *session
	return &copied
}

func (s *stripeStub) session(id string) *stubSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	copied := *session
	return &copied
}

func writeStubJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStubError(w http.ResponseWriter, status int, message string) {
	writeStubJSON(w, status, map[string]any{
		"error": map[string]string{"type": "invalid_request_error", "message": message},
	})
}

// stubEnhancer echoes the input image and counts calls
type stubEnhancer struct {
	mu    sync.Mutex
	calls int
	err   error
}

var _ enhancer.Enhancer = (*stubEnhancer)(nil)

func (e *stubEnhancer) Enhance(_ context.Context, image []byte, mimeType, _ string) (*enhancer.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return &enhancer.Result{Image: image, MIMEType: mimeType, Text: "brightened interior"}, nil
}

func (e *stubEnhancer) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = 0
	e.err = nil
}

func (e *stubEnhancer) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
