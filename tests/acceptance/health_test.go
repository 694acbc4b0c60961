package acceptance

import (
	"net/http"
)

func (s *Suite) TestHealthEndpoint() {
	resp, err := http.Get(s.BaseURL + "/health")
	s.Require().NoError(err, "Failed to make request")

	s.Equal(http.StatusOK, resp.StatusCode, "Expected status 200")

	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	s.decode(resp, &body)
	s.Equal("pass", body.Status)
	s.Equal("photo-enhancer", body.Service)
}

func (s *Suite) TestMetricsEndpoint() {
	resp, err := http.Get(s.BaseURL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
}
