package buildkite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedServer serves total pages, each linking to the next.
func pagedServer(t *testing.T, total int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &page)
		}
		if page < total {
			w.Header().Set("Link", fmt.Sprintf(`<%s%s?page=%d>; rel="next", <%s%s?page=%d>; rel="last"`,
				srv.URL, r.URL.Path, page+1, srv.URL, r.URL.Path, total))
		}
		fmt.Fprintf(w, `[{"id": "b-%d", "number": %d, "web_url": "u", "jobs": []}]`, page, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListBuildsFollowsLinks(t *testing.T) {
	var requests atomic.Int32
	srv := pagedServer(t, 3, &requests)

	client := NewClient(context.Background(), Options{BaseURL: srv.URL, Org: "acme"})
	pages, err := client.ListBuilds(context.Background(), Query{Pipeline: "tests"})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.EqualValues(t, 3, requests.Load())

	builds, err := DecodePages(pages, "acme/tests")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{builds[0].Number, builds[1].Number, builds[2].Number})
}

func TestListBuildsStopsAtMaxFetches(t *testing.T) {
	var requests atomic.Int32
	srv := pagedServer(t, 5, &requests)

	client := NewClient(context.Background(), Options{BaseURL: srv.URL, Org: "acme"})
	pages, err := client.ListBuilds(context.Background(), Query{Pipeline: "tests", MaxFetches: 2})
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.EqualValues(t, 2, requests.Load())
}

func TestListBuildsSendsBearerTokenAndParams(t *testing.T) {
	var gotAuth, gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	client := NewClient(context.Background(), Options{BaseURL: srv.URL + "/", Org: "acme", Token: "tok"})
	_, err := client.ListBuilds(context.Background(), Query{
		Pipeline:       "tests",
		Branch:         "main",
		States:         []string{"passed", "failed"},
		IncludeRetries: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/organizations/acme/pipelines/tests/builds", gotPath)
	assert.Equal(t, []string{"true"}, gotQuery["include_retried_jobs"])
	assert.Equal(t, []string{"100"}, gotQuery["per_page"])
	assert.Equal(t, []string{"main"}, gotQuery["branch"])
	assert.Equal(t, []string{"passed", "failed"}, gotQuery["state[]"])
}

func TestPath(t *testing.T) {
	client := NewClient(context.Background(), Options{Org: "acme"})
	assert.Equal(t, "/organizations/acme/builds", client.Path(Query{}))
	assert.Equal(t, "/organizations/acme/pipelines/nightly/builds", client.Path(Query{Pipeline: "nightly"}))
}

func TestParamsOmitsEmptyFilters(t *testing.T) {
	params := Params(Query{PerPage: 25})
	assert.Equal(t, "false", params.Get("include_retried_jobs"))
	assert.Equal(t, "25", params.Get("per_page"))
	assert.False(t, params.Has("branch"))
	assert.False(t, params.Has("state[]"))
}

func TestListBuildsRetriesTemporaryFailures(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	client := NewClient(context.Background(), Options{BaseURL: srv.URL, Org: "acme", Backoff: time.Millisecond})
	pages, err := client.ListBuilds(context.Background(), Query{Pipeline: "tests"})
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.EqualValues(t, 3, requests.Load())
}

func TestListBuildsGivesUpAfterMaxAttempts(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(context.Background(), Options{BaseURL: srv.URL, Org: "acme", MaxAttempts: 2, Backoff: time.Millisecond})
	_, err := client.ListBuilds(context.Background(), Query{Pipeline: "tests"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 2 attempts")
	assert.EqualValues(t, 2, requests.Load())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}

func TestListBuildsDoesNotRetryClientErrors(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(context.Background(), Options{BaseURL: srv.URL, Org: "acme", Backoff: time.Millisecond})
	_, err := client.ListBuilds(context.Background(), Query{Pipeline: "tests"})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.False(t, statusErr.Temporary())
	assert.Contains(t, statusErr.Error(), "Not Found")
	assert.EqualValues(t, 1, requests.Load())
}

func TestListBuildsHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(context.Background(), Options{BaseURL: srv.URL, Org: "acme", Backoff: time.Hour})
	_, err := client.ListBuilds(ctx, Query{Pipeline: "tests"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: ""},
		{header: `<https://api.example/b?page=2>; rel="next"`, want: "https://api.example/b?page=2"},
		{header: `<https://api.example/b?page=1>; rel="prev", <https://api.example/b?page=3>; rel="next"`, want: "https://api.example/b?page=3"},
		{header: `<https://api.example/b?page=9>; rel="last"`, want: ""},
		{header: `garbage; rel="next"`, want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextLink(tt.header), tt.header)
	}
}
