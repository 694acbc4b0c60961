package acceptance

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/prperemyshlev/photo-enhancer/internal/checkout"
)

type checkStatus struct {
	Paid       bool   `json:"paid"`
	PaymentID  string `json:"payment_id"`
	FreeAccess bool   `json:"free_access"`
}

func (s *Suite) openCheckout(token string, photoIDs ...string) (sessionID string) {
	resp := s.postJSON("/api/payment/create-checkout-session", token, map[string]any{"photo_ids": photoIDs})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Success   bool   `json:"success"`
		SessionID string `json:"sessionId"`
		URL       string `json:"url"`
	}
	s.decode(resp, &body)
	s.Require().True(body.Success)
	s.NotEmpty(body.URL)

	return body.SessionID
}

func (s *Suite) status(token, sessionID string, photoIDs ...string) checkStatus {
	resp := s.postJSON("/api/payment/check-status", token, map[string]any{
		"photo_ids":  photoIDs,
		"session_id": sessionID,
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var body checkStatus
	s.decode(resp, &body)
	return body
}

func (s *Suite) TestAnonymousUploadsArePaidThroughWebhook() {
	first := s.upload("/api/enhance", "")
	second := s.upload("/api/convert-to-night", "")

	resp := s.postJSON("/api/auth/signup", "", map[string]string{
		"username":         "buyer",
		"email":            "buyer@example.com",
		"password":         "password123",
		"confirm_password": "password123",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var auth struct {
		AccessToken string `json:"access_token"`
		Claimed     int64  `json:"claimed_photos"`
	}
	s.decode(resp, &auth)
	s.EqualValues(2, auth.Claimed)
	token := auth.AccessToken

	sessionID := s.openCheckout(token, first, second, first)

	session := s.Stripe.session(sessionID)
	s.Require().NotNil(session)
	s.EqualValues(2*testPricePerPhoto, session.AmountTotal)
	s.Equal("2", session.quantity)

	s.False(s.status(token, sessionID, first, second).Paid)

	paid := s.Stripe.markPaid(sessionID)
	resp = s.deliverWebhook("evt_1", checkout.EventSessionCompleted, paid)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	bySession := s.status(token, sessionID, first, second)
	s.True(bySession.Paid)
	s.NotEmpty(bySession.PaymentID)

	byPhotos := s.status(token, "", second)
	s.True(byPhotos.Paid)
	s.Equal(bySession.PaymentID, byPhotos.PaymentID)

	// a redelivered event is acknowledged and changes nothing
	resp = s.deliverWebhook("evt_1", checkout.EventSessionCompleted, paid)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var count int
	err := s.Postgres.DB.QueryRow(
		`SELECT count(*) FROM payment_intents WHERE status = 'completed'`).Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *Suite) TestWebhookAndRedirectRaceCompletesOnce() {
	_, token := s.signup("racer")
	photoID := s.upload("/api/enhance", token)
	sessionID := s.openCheckout(token, photoID)

	completedBefore := s.counterTotal("payments_transitions_total", `status="completed"`)

	paid := s.Stripe.markPaid(sessionID)
	payload := s.webhookPayload("evt_race", checkout.EventSessionCompleted, paid)

	const rounds = 4
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []int
		errs     []error
	)
	record := func(resp *http.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, err)
			return
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	start := make(chan struct{})
	for range rounds {
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			record(s.postWebhook(payload))
		}()
		go func() {
			defer wg.Done()
			<-start
			record(http.Get(s.BaseURL + "/payment/success?session_id=" + sessionID))
		}()
	}
	close(start)
	wg.Wait()

	s.Require().Empty(errs)
	s.Len(statuses, 2*rounds)
	for _, code := range statuses {
		s.Equal(http.StatusOK, code)
	}

	var (
		count       int
		completedAt *time.Time
	)
	err := s.Postgres.DB.QueryRow(
		`SELECT count(*), max(completed_at) FROM payment_intents WHERE provider_session_id = $1 AND status = 'completed'`,
		sessionID).Scan(&count, &completedAt)
	s.Require().NoError(err)
	s.Equal(1, count)
	s.Require().NotNil(completedAt)

	s.Equal(1.0, s.counterTotal("payments_transitions_total", `status="completed"`)-completedBefore)

	// late confirmations from either path leave the completion untouched
	resp, err := s.postWebhook(payload)
	s.Require().NoError(err)
	resp.Body.Close()
	resp = s.do(http.MethodGet, "/payment/success?session_id="+sessionID, "", nil, "")
	resp.Body.Close()

	var again time.Time
	err = s.Postgres.DB.QueryRow(
		`SELECT completed_at FROM payment_intents WHERE provider_session_id = $1`, sessionID).Scan(&again)
	s.Require().NoError(err)
	s.True(completedAt.Equal(again))
	s.Equal(1.0, s.counterTotal("payments_transitions_total", `status="completed"`)-completedBefore)
}

func (s *Suite) TestRedirectConfirmsPaidSession() {
	_, token := s.signup("redirected")
	photoID := s.upload("/api/enhance", token)
	sessionID := s.openCheckout(token, photoID)

	var pending struct {
		Found   bool   `json:"found"`
		Message string `json:"message"`
		Payment struct {
			Status string `json:"status"`
		} `json:"payment"`
	}
	s.decode(s.do(http.MethodGet, "/payment/success?session_id="+sessionID, "", nil, ""), &pending)
	s.True(pending.Found)
	s.Equal("pending", pending.Payment.Status)

	s.Stripe.markPaid(sessionID)

	var done struct {
		Found   bool `json:"found"`
		Payment struct {
			Status            string `json:"status"`
			Amount            int64  `json:"amount"`
			ProviderPaymentID string `json:"provider_payment_id"`
		} `json:"payment"`
	}
	s.decode(s.do(http.MethodGet, "/payment/success?session_id="+sessionID, "", nil, ""), &done)
	s.True(done.Found)
	s.Equal("completed", done.Payment.Status)
	s.EqualValues(testPricePerPhoto, done.Payment.Amount)
	s.NotEmpty(done.Payment.ProviderPaymentID)

	var unknown struct {
		Found bool `json:"found"`
	}
	s.decode(s.do(http.MethodGet, "/payment/success?session_id=cs_test_missing", "", nil, ""), &unknown)
	s.False(unknown.Found)
}

func (s *Suite) TestExpiredSessionIsNotPaid() {
	_, token := s.signup("expired")
	photoID := s.upload("/api/enhance", token)
	sessionID := s.openCheckout(token, photoID)

	session := s.Stripe.session(sessionID)
	session.Status = checkout.SessionStatusExpired
	resp := s.deliverWebhook("evt_expired", checkout.EventSessionExpired, session)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	// a late completion cannot revive a cancelled intent
	paid := s.Stripe.markPaid(sessionID)
	resp = s.deliverWebhook("evt_late", checkout.EventSessionCompleted, paid)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	s.False(s.status(token, sessionID, photoID).Paid)
}

func (s *Suite) TestWebhookRejectsBadSignature() {
	req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/api/payment/webhook",
		bytes.NewReader([]byte(`{"id":"evt_forged","type":"checkout.session.completed"}`)))
	s.Require().NoError(err)
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestCheckoutRejectsPhotosOfAnotherUser() {
	_, owner := s.signup("seller")
	_, other := s.signup("stranger")
	photoID := s.upload("/api/enhance", owner)

	resp := s.postJSON("/api/payment/create-checkout-session", other, map[string]any{"photo_ids": []string{photoID}})
	resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *Suite) TestFreeAccessSkipsProvider() {
	userID, token := s.signup("vip")
	photoID := s.upload("/api/enhance", token)

	req, err := http.NewRequest(http.MethodPut, s.BaseURL+"/api/admin/users/"+userID+"/free-access",
		bytes.NewReader([]byte(`{"enabled":true}`)))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", testAdminKey)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.postJSON("/api/payment/create-checkout-session", token, map[string]any{"photo_ids": []string{photoID}})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		FreeAccess bool   `json:"free_access"`
		SessionID  string `json:"sessionId"`
	}
	s.decode(resp, &body)
	s.True(body.FreeAccess)
	s.Nil(s.Stripe.session(body.SessionID))

	result := s.status(token, "", photoID)
	s.True(result.Paid)
	s.True(result.FreeAccess)
}
