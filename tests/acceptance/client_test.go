package acceptance

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prperemyshlev/photo-enhancer/internal/checkout"
)

func (s *Suite) do(method, path, token string, body io.Reader, contentType string) *http.Response {
	req, err := http.NewRequest(method, s.BaseURL+path, body)
	s.Require().NoError(err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err, "Failed to make request")
	return resp
}

func (s *Suite) postJSON(path, token string, payload any) *http.Response {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)
	return s.do(http.MethodPost, path, token, bytes.NewReader(body), "application/json")
}

func (s *Suite) decode(resp *http.Response, out any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
}

func (s *Suite) signup(username string) (userID, token string) {
	resp := s.postJSON("/api/auth/signup", "", map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "password123",
		"confirm_password": "password123",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var body struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	s.decode(resp, &body)
	s.Require().NotEmpty(body.AccessToken)

	return body.User.ID, body.AccessToken
}

// upload posts a small PNG to path and returns the new photo id
func (s *Suite) upload(path, token string) string {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", "living-room.png")
	s.Require().NoError(err)
	s.Require().NoError(png.Encode(part, testImage()))
	s.Require().NoError(w.WriteField("change_intensity", "moderate"))
	s.Require().NoError(w.Close())

	resp := s.do(http.MethodPost, path, token, &buf, w.FormDataContentType())
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Success       bool   `json:"success"`
		ImageID       string `json:"image_id"`
		RequiresLogin bool   `json:"requires_login"`
	}
	s.decode(resp, &body)
	s.Require().True(body.Success)
	s.Equal(token == "", body.RequiresLogin)

	return body.ImageID
}

func (s *Suite) deliverWebhook(eventID, eventType string, session *stubSession) *http.Response {
	resp, err := s.postWebhook(s.webhookPayload(eventID, eventType, session))
	s.Require().NoError(err)
	return resp
}

func (s *Suite) webhookPayload(eventID, eventType string, session *stubSession) []byte {
	payload, err := json.Marshal(map[string]any{
		"id":   eventID,
		"type": eventType,
		"data": map[string]any{"object": session},
	})
	s.Require().NoError(err)
	return payload
}

// postWebhook is safe to call from several goroutines
func (s *Suite) postWebhook(payload []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/api/payment/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", checkout.SignatureHeader(payload, testWebhookSecret, time.Now()))
	return http.DefaultClient.Do(req)
}

// counterTotal sums every series of a Prometheus counter whose labels include all of labels
func (s *Suite) counterTotal(name string, labels ...string) float64 {
	resp := s.do(http.MethodGet, "/metrics", "", nil, "")
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	var total float64
	for _, line := range strings.Split(string(body), "\n") {
		if !strings.HasPrefix(line, name+"{") {
			continue
		}
		matched := true
		for _, l := range labels {
			if !strings.Contains(line, l) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		value, err := strconv.ParseFloat(line[strings.LastIndexByte(line, ' ')+1:], 64)
		s.Require().NoError(err, line)
		total += value
	}
	return total
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 20), B: 128, A: 255})
		}
	}
	return img
}
