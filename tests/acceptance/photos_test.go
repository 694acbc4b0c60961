package acceptance

import (
	"io"
	"net/http"
)

func (s *Suite) TestAuthenticatedUploadIsListedAndDownloadable() {
	_, token := s.signup("stager")

	photoID := s.upload("/api/enhance", token)
	s.NotEmpty(photoID)
	s.Equal(1, s.Enhancer.callCount())

	resp := s.do(http.MethodGet, "/api/photos?page=1&per_page=10", token, nil, "")
	s.Equal(http.StatusOK, resp.StatusCode)

	var list struct {
		Photos []struct {
			ID   string `json:"id"`
			Kind string `json:"conversion_kind"`
		} `json:"photos"`
		Pagination struct {
			Total   int  `json:"total"`
			HasNext bool `json:"has_next"`
		} `json:"pagination"`
	}
	s.decode(resp, &list)
	s.Require().Len(list.Photos, 1)
	s.Equal(photoID, list.Photos[0].ID)
	s.Equal(1, list.Pagination.Total)
	s.False(list.Pagination.HasNext)

	resp = s.do(http.MethodGet, "/api/photos/"+photoID+"/enhanced", token, nil, "")
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("image/jpeg", resp.Header.Get("Content-Type"))
	s.Contains(resp.Header.Get("Content-Disposition"), "attachment")

	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.NotEmpty(data)
}

func (s *Suite) TestPhotosAreOwnerOnly() {
	_, owner := s.signup("owner")
	_, other := s.signup("intruder")

	photoID := s.upload("/api/convert-to-night", owner)

	resp := s.do(http.MethodGet, "/api/photos/"+photoID, other, nil, "")
	resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodDelete, "/api/photos/"+photoID, other, nil, "")
	resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodDelete, "/api/photos/"+photoID, owner, nil, "")
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/photos/"+photoID, owner, nil, "")
	resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestPhotosRequireAuth() {
	resp := s.do(http.MethodGet, "/api/photos", "", nil, "")
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}
