package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otago-pg/internal/config"
)

func robotsServer(t *testing.T, body string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func agent(respect bool, overrides ...string) *Agent {
	return NewAgent(config.RobotsConfig{
		Respect:   respect,
		UserAgent: "otago-pg-scraper/1.0",
		Overrides: overrides,
		CacheTTL:  config.DurationFrom(time.Hour),
	}, nil, nil)
}

func TestCheckHonoursRules(t *testing.T) {
	srv, hits := robotsServer(t, "User-agent: *\nDisallow: /private/\n", http.StatusOK)
	a := agent(true)
	ctx := context.Background()

	require.NoError(t, a.Check(ctx, srv.URL+"/courses/mcom"))
	err := a.Check(ctx, srv.URL+"/private/staff")
	assert.ErrorIs(t, err, ErrDisallowed)
	assert.Equal(t, int32(1), hits.Load(), "rules are cached per host")
}

func TestCheckFailsOpen(t *testing.T) {
	srv, hits := robotsServer(t, "", http.StatusInternalServerError)
	a := agent(true)
	assert.NoError(t, a.Check(context.Background(), srv.URL+"/private/x"))
	assert.NoError(t, a.Check(context.Background(), srv.URL+"/private/y"))
	assert.Equal(t, int32(1), hits.Load(), "failures are cached too")
}

func TestOverridesAndDisabled(t *testing.T) {
	srv, hits := robotsServer(t, "User-agent: *\nDisallow: /\n", http.StatusOK)
	ctx := context.Background()

	assert.NoError(t, agent(false).Check(ctx, srv.URL+"/x"))
	assert.NoError(t, agent(true, "127.0.0.1").Check(ctx, srv.URL+"/x"))
	assert.Zero(t, hits.Load())

	assert.False(t, agent(false).Allowed(ctx, nil))
}
