package acceptance

import (
	"net/http"
)

func (s *Suite) TestSignupAndMe() {
	userID, token := s.signup("listing_agent")
	s.NotEmpty(userID)

	resp := s.do(http.MethodGet, "/api/auth/me", token, nil, "")
	s.Equal(http.StatusOK, resp.StatusCode)

	var me struct {
		ID              string `json:"id"`
		Username        string `json:"username"`
		Email           string `json:"email"`
		ImagesProcessed int    `json:"images_processed"`
		HasPassword     bool   `json:"has_password"`
	}
	s.decode(resp, &me)
	s.Equal(userID, me.ID)
	s.Equal("listing_agent", me.Username)
	s.Equal("listing_agent@example.com", me.Email)
	s.True(me.HasPassword)
}

func (s *Suite) TestSignupRejectsDuplicatesAndMismatch() {
	s.signup("duplicate")

	resp := s.postJSON("/api/auth/signup", "", map[string]string{
		"username":         "duplicate",
		"email":            "other@example.com",
		"password":         "password123",
		"confirm_password": "password123",
	})
	resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)

	resp = s.postJSON("/api/auth/signup", "", map[string]string{
		"username":         "mismatch",
		"email":            "mismatch@example.com",
		"password":         "password123",
		"confirm_password": "password124",
	})
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestLoginByUsernameOrEmail() {
	s.signup("photographer")

	for _, identifier := range []string{"photographer", "Photographer@Example.com"} {
		resp := s.postJSON("/api/auth/login", "", map[string]string{
			"username": identifier,
			"password": "password123",
		})
		s.Equal(http.StatusOK, resp.StatusCode, identifier)

		var body struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
		}
		s.decode(resp, &body)
		s.NotEmpty(body.AccessToken)
		s.Equal("Bearer", body.TokenType)
	}

	resp := s.postJSON("/api/auth/login", "", map[string]string{
		"username": "photographer",
		"password": "wrong-password",
	})
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestRefreshRotatesCookie() {
	resp := s.postJSON("/api/auth/signup", "", map[string]string{
		"username":         "rotator",
		"email":            "rotator@example.com",
		"password":         "password123",
		"confirm_password": "password123",
	})
	resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	refresh := findCookie(resp.Cookies(), "refresh_token")
	s.Require().NotNil(refresh)

	req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/api/auth/refresh", nil)
	s.Require().NoError(err)
	req.AddCookie(&http.Cookie{Name: refresh.Name, Value: refresh.Value})

	resp, err = http.DefaultClient.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	rotated := findCookie(resp.Cookies(), "refresh_token")
	s.Require().NotNil(rotated)
	s.NotEqual(refresh.Value, rotated.Value)

	// the old refresh token was revoked by rotation
	req, err = http.NewRequest(http.MethodPost, s.BaseURL+"/api/auth/refresh", nil)
	s.Require().NoError(err)
	req.AddCookie(&http.Cookie{Name: refresh.Name, Value: refresh.Value})

	resp, err = http.DefaultClient.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestLogoutRevokesAccessToken() {
	_, token := s.signup("leaving")

	resp := s.do(http.MethodPost, "/api/auth/logout", token, nil, "")
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/auth/me", token, nil, "")
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestAuthCheck() {
	_, token := s.signup("checker")

	var body struct {
		Authenticated bool `json:"authenticated"`
	}

	s.decode(s.do(http.MethodGet, "/api/auth/check", token, nil, ""), &body)
	s.True(body.Authenticated)

	s.decode(s.do(http.MethodGet, "/api/auth/check", "", nil, ""), &body)
	s.False(body.Authenticated)
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
