package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "lms" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_QueryValue_Vector(t *testing.T) {
	srv := newServer(t, `{"status":"success","data":{"resultType":"vector","result":[
		{"metric":{"instance":"a"},"value":[1700000000,"120"]},
		{"metric":{"instance":"b"},"value":[1700000000,"30"]}
	]}}`)

	c, err := NewClient(Config{URL: srv.URL, Username: "lms", Password: "secret", Timeout: time.Second})
	require.NoError(t, err)

	v, err := c.QueryValue(context.Background(), "lms_active_users", time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Equal(t, 150.0, v)
}

func TestClient_QueryValue_Scalar(t *testing.T) {
	srv := newServer(t, `{"status":"success","data":{"resultType":"scalar","result":[1700000000,"42"]}}`)

	c, err := NewClient(Config{URL: srv.URL, Username: "lms", Password: "secret"})
	require.NoError(t, err)

	v, err := c.QueryValue(context.Background(), "scalar(lms_active_users)", time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestClient_QueryValue_Empty(t *testing.T) {
	srv := newServer(t, `{"status":"success","data":{"resultType":"vector","result":[]}}`)

	c, err := NewClient(Config{URL: srv.URL, Username: "lms", Password: "secret"})
	require.NoError(t, err)

	_, err = c.QueryValue(context.Background(), "absent_metric", time.Now())
	assert.Error(t, err)
}
