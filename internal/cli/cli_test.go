package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	uri    string
	apiKey string
	body   map[string]interface{}
}

func newServer(t *testing.T, status int) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, uri: r.URL.RequestURI(), apiKey: r.Header.Get("x-api-key")}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &rec.body))
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"code":200,"data":{"total":1}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func execute(t *testing.T, srvURL string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srvURL, "--api-key", "k"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK)

	out, err := execute(t, srv.URL, "run", "--batch-size", "10")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 1`)

	_, err = execute(t, srv.URL, "run", "--org", "org 1")
	require.NoError(t, err)

	require.Len(t, *calls, 2)
	assert.Equal(t, "POST", (*calls)[0].method)
	assert.Equal(t, "/api/internal/vectorize", (*calls)[0].uri)
	assert.Equal(t, "k", (*calls)[0].apiKey)
	assert.Equal(t, float64(10), (*calls)[0].body["batchSize"])
	assert.Equal(t, "/api/internal/organizations/org%201/knowledge-base/vectorize", (*calls)[1].uri)
}

func TestTriggerStatusAndDocCommands(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK)

	_, err := execute(t, srv.URL, "trigger", "--org", "org-1")
	require.NoError(t, err)
	_, err = execute(t, srv.URL, "status", "--org", "org-1")
	require.NoError(t, err)
	_, err = execute(t, srv.URL, "doc", "doc-1")
	require.NoError(t, err)

	require.Len(t, *calls, 3)
	assert.Equal(t, "/api/internal/vectorize/trigger", (*calls)[0].uri)
	assert.Equal(t, "org-1", (*calls)[0].body["organizationId"])
	assert.Equal(t, "cli", (*calls)[0].body["reason"])
	assert.Equal(t, "/api/internal/vectorize/status?organizationId=org-1", (*calls)[1].uri)
	assert.Equal(t, "GET", (*calls)[2].method)
	assert.Equal(t, "/api/internal/documents/doc-1/vectorization", (*calls)[2].uri)
}

func TestNonSuccessStatusIsAnError(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized)

	_, err := execute(t, srv.URL, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestDocRequiresID(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK)
	_, err := execute(t, srv.URL, "doc")
	require.Error(t, err)
	assert.Empty(t, *calls)
}
