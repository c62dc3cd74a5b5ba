package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/server/internal/store"
)

type stubEngine struct {
	connections int
	sessions    int
}

func (e *stubEngine) Connections() int { return e.connections }
func (e *stubEngine) Sessions() int    { return e.sessions }

func newTestAPI(t *testing.T, engine Engine) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(engine, st), st
}

func TestHealth(t *testing.T) {
	api, _ := newTestAPI(t, &stubEngine{connections: 3})
	ts := httptest.NewServer(api.Echo())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, 3, body.Connections)
}

func TestStats(t *testing.T) {
	api, st := newTestAPI(t, &stubEngine{connections: 2, sessions: 1})
	ts := httptest.NewServer(api.Echo())
	t.Cleanup(ts.Close)

	alice, err := st.CreateUser("alice", "digest", "alice@example.com")
	require.NoError(t, err)
	bob, err := st.CreateUser("bob", "digest", "bob@example.com")
	require.NoError(t, err)
	gid, err := st.CreateGroup("lobby", alice)
	require.NoError(t, err)
	_, err = st.AppendPM(alice, bob, []byte("hi"), 1)
	require.NoError(t, err)
	_, err = st.AppendGM(gid, alice, []byte("yo"), 2)
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 2, body.Connections)
	require.Equal(t, 1, body.Sessions)
	require.Equal(t, 2, body.Users)
	require.Equal(t, 1, body.Groups)
	require.Equal(t, 2, body.Messages)
}

func TestMetricsExposed(t *testing.T) {
	api, _ := newTestAPI(t, &stubEngine{})
	ts := httptest.NewServer(api.Echo())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
