package secretauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRejectsMissingSecret(t *testing.T) {
	mw := Middleware("right")
	srv := httptest.NewServer(mw(okHandler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMiddlewareAcceptsMatchingSecret(t *testing.T) {
	mw := Middleware("right")
	srv := httptest.NewServer(mw(okHandler()))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	SetHeader(req, "right")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMiddlewareDisabledWhenSecretEmpty(t *testing.T) {
	mw := Middleware("")
	srv := httptest.NewServer(mw(okHandler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check("", "anything"))
	assert.NoError(t, Check("right", "right"))
	assert.Error(t, Check("right", "wrong"))
}
