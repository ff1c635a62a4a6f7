package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSendsBearerAndUnwraps(t *testing.T) {
	var gotAuth, gotType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("X-Total-Count", "7")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"abc","name":"Launch"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", nil, nil)
	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	h, err := c.Do(context.Background(), http.MethodPost, "/campaigns", "tok.sig", map[string]any{"name": "Launch"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok.sig", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "Launch", gotBody["name"])
	assert.Equal(t, "abc", out.ID)
	assert.Equal(t, "7", h.Get("X-Total-Count"))
}

func TestDoMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"success":false,"error":"Unauthorized to modify this campaign"}`))
		case "/html":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html>bad gateway</html>`))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, nil, nil)

	_, err := c.Do(context.Background(), http.MethodDelete, "/forbidden", "t", nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Unauthorized to modify this campaign", apiErr.Message)

	_, err = c.Do(context.Background(), http.MethodGet, "/html", "", nil, nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)

	_, err = c.Do(context.Background(), http.MethodDelete, "/empty", "t", nil, nil)
	assert.NoError(t, err)
}
