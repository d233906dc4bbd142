package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f := NewFetcher()
	f.Headless = false
	return f
}

func TestFetchPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div class="game-card">ok</div>`))
	}))
	defer srv.Close()

	html, err := testFetcher(t).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, html, "game-card")
}

func TestFetchRejectsChallengePage(t *testing.T) {
	bodies := []string{
		`<html>Подтвердите, что вы не робот</html>`,
		`<html>Checking your browser... cloudflare</html>`,
		`<html><div class="captcha"></div></html>`,
	}
	for _, body := range bodies {
		body := body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := testFetcher(t).Fetch(context.Background(), srv.URL)
		srv.Close()
		require.Error(t, err, body)
		assert.ErrorIs(t, err, ErrAntiBot, body)
	}
}

func TestFetchRejectsShellWithoutMarkers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><div id="app"></div><script src="/bundle.js"></script></html>`))
	}))
	defer srv.Close()

	_, err := testFetcher(t).Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`<div class="schedule-column">ok</div>`))
	}))
	defer srv.Close()

	html, err := testFetcher(t).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, html, "schedule-column")
	assert.Equal(t, 2, calls)
}

func TestFetchJSON(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	body, err := testFetcher(t).FetchJSON(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestContainsChallenge(t *testing.T) {
	assert.True(t, containsChallenge("пожалуйста, подтвердите что вы не робот"))
	assert.False(t, containsChallenge(`<div class="game-card">Квиз</div>`))
}
