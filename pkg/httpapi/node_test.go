package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/node"
)

type testFactory struct{}

func (testFactory) NewSession(_ context.Context, stereotype, _ capabilities.Capabilities) (grid.Session, error) {
	return grid.Session{ID: grid.NewSessionID(), Stereotype: stereotype}, nil
}

func (testFactory) StopSession(context.Context, grid.SessionID) error { return nil }

func (testFactory) ExecuteWebDriverCommand(context.Context, grid.SessionID, string, string, []byte) (int, []byte, error) {
	return 200, []byte(`{"value":"ok"}`), nil
}

func TestNodeRouterStatusAndHealthcheck(t *testing.T) {
	n := node.NewLocal("node-1", "http://node-1:4444", []capabilities.Capabilities{{"browserName": "cheese"}}, testFactory{}, "1.0", grid.OSInfo{}, nil)
	srv := httptest.NewServer(NewNodeRouter(n, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status grid.NodeStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Len(t, status.Slots, 1)

	resp, err = http.Get(srv.URL + "/healthcheck")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestNodeRouterNewSessionRequiresSecret(t *testing.T) {
	n := node.NewLocal("node-1", "http://node-1:4444", []capabilities.Capabilities{{"browserName": "cheese"}}, testFactory{}, "1.0", grid.OSInfo{}, nil)
	srv := httptest.NewServer(NewNodeRouter(n, "right"))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/session", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
