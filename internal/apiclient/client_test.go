package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// authServer hands out a new access cookie on every refresh and rejects
// requests that do not carry the current one.
type authServer struct {
	mu          sync.Mutex
	refreshes   int
	valid       string
	failRefresh bool
	onRefresh   func()
}

func (s *authServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")

	switch path {
	case "/auth/refresh":
		s.mu.Lock()
		s.refreshes++
		n := s.refreshes
		hook, fail := s.onRefresh, s.failRefresh
		s.mu.Unlock()

		if hook != nil {
			hook()
		}
		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"Invalid refresh token"}`)
			return
		}

		token := fmt.Sprintf("tok-%d", n)
		s.mu.Lock()
		s.valid = token
		s.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: token, Path: "/", HttpOnly: true})
		fmt.Fprint(w, `{"message":"Token refreshed"}`)
		return
	case "/auth/login":
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Incorrect email or password"}`)
		return
	case "/always-401":
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Token expired"}`)
		return
	case "/boom":
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"detail":"internal error"}`)
		return
	}

	cookie, err := r.Cookie("access_token")
	s.mu.Lock()
	valid := s.valid
	s.mu.Unlock()
	if err != nil || cookie.Value != valid {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Token expired"}`)
		return
	}

	body, _ := io.ReadAll(r.Body)
	json.NewEncoder(w).Encode(map[string]string{"path": path, "body": string(body)})
}

func (s *authServer) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

type countingSession struct {
	teardowns atomic.Int32
}

func (s *countingSession) Teardown(string) bool {
	s.teardowns.Add(1)
	return true
}

func newTestClient(t *testing.T, backend http.Handler, opts ...Option) (*Client, *countingSession) {
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	sess := &countingSession{}
	opts = append([]Option{
		WithCookieJar(jar),
		WithSession(sess),
		WithLogger(zerolog.New(io.Discard)),
	}, opts...)

	c, err := New(ts.URL+"/api/v1", opts...)
	require.NoError(t, err)
	return c, sess
}

// waitForWaiters blocks until n callers are queued behind the refresh
func waitForWaiters(t *testing.T, c *Client, n int) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		queued := len(c.waiters)
		c.mu.Unlock()
		if queued >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Errorf("timed out waiting for %d queued requests", n)
}

func decodePath(t *testing.T, resp *Response) string {
	var out map[string]string
	require.NoError(t, resp.Decode(&out))
	return out["path"]
}

func TestSendRefreshesOnceAndReturnsRetriedResponse(t *testing.T) {
	srv := &authServer{valid: "tok-0"}
	c, sess := newTestClient(t, srv)

	resp, err := c.Send(context.Background(), NewRequest(http.MethodGet, "/reminders/stats", nil))
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, resp.Retried)
	require.Equal(t, "/reminders/stats", decodePath(t, resp))
	require.Equal(t, 1, srv.refreshCount())
	require.EqualValues(t, 1, c.RefreshCount())
	require.Zero(t, sess.teardowns.Load())
}

func TestSendPassesThroughWhenAuthorized(t *testing.T) {
	srv := &authServer{valid: "tok-0"}
	c, _ := newTestClient(t, srv)

	_, err := c.Send(context.Background(), NewRequest(http.MethodGet, "/reminders", nil))
	require.NoError(t, err)

	resp, err := c.Send(context.Background(), NewRequest(http.MethodGet, "/reminders", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, resp.Retried)
	require.Equal(t, 1, srv.refreshCount())
}

func TestSendReplaysBody(t *testing.T) {
	srv := &authServer{valid: "tok-0"}
	c, _ := newTestClient(t, srv)

	req, err := NewJSONRequest(http.MethodPost, "/reminders", map[string]string{"title": "Call mom"})
	require.NoError(t, err)

	resp, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	require.True(t, req.Retried())

	var out map[string]string
	require.NoError(t, resp.Decode(&out))
	require.JSONEq(t, `{"title":"Call mom"}`, out["body"])
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 8
	srv := &authServer{valid: "tok-0"}
	c, sess := newTestClient(t, srv)
	srv.onRefresh = func() { waitForWaiters(t, c, n-1) }

	paths := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			path := fmt.Sprintf("/reminders/%d", i)
			resp, err := c.Send(context.Background(), NewRequest(http.MethodGet, path, nil))
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("request %d: status %d", i, resp.StatusCode)
			}
			var out map[string]string
			if err := resp.Decode(&out); err != nil {
				return err
			}
			paths[i] = out["path"]
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, 1, srv.refreshCount())
	require.Zero(t, sess.teardowns.Load())
	for i, p := range paths {
		require.Equal(t, fmt.Sprintf("/reminders/%d", i), p)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	require.False(t, c.refreshing)
	require.Empty(t, c.waiters)
}

func TestConcurrentRefreshFailureRejectsAllAndClearsOnce(t *testing.T) {
	const n = 5
	srv := &authServer{valid: "tok-0", failRefresh: true}
	c, sess := newTestClient(t, srv)
	srv.onRefresh = func() { waitForWaiters(t, c, n-1) }

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Send(context.Background(), NewRequest(http.MethodGet, "/reminders", nil))
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, srv.refreshCount())
	require.EqualValues(t, 1, sess.teardowns.Load())
	for _, err := range errs {
		require.ErrorIs(t, err, ErrSessionExpired)

		var refreshErr *RefreshError
		require.ErrorAs(t, err, &refreshErr)

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		require.Equal(t, "Invalid refresh token", httpErr.Detail)
	}
}

func TestRepeatUnauthorizedIsNotRetriedAgain(t *testing.T) {
	srv := &authServer{valid: "tok-0"}
	c, sess := newTestClient(t, srv)

	resp, err := c.Send(context.Background(), NewRequest(http.MethodGet, "/always-401", nil))
	require.NoError(t, err)

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.True(t, resp.Retried)
	require.Equal(t, 1, srv.refreshCount())
	require.Zero(t, sess.teardowns.Load())
	require.ErrorIs(t, resp.Err(), ErrSessionExpired)
}

func TestRetriedRequestTriggersNoRefresh(t *testing.T) {
	srv := &authServer{valid: "tok-0"}
	c, _ := newTestClient(t, srv)

	req := NewRequest(http.MethodGet, "/always-401", nil)
	req.retried = true

	resp, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, srv.refreshCount())
}

func TestAuthEndpointFailsOpenly(t *testing.T) {
	srv := &authServer{valid: "tok-0"}
	c, sess := newTestClient(t, srv)

	resp, err := c.Send(context.Background(), NewRequest(http.MethodPost, "/auth/login", []byte(`{}`)))
	require.NoError(t, err)

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, resp.Retried)
	require.JSONEq(t, `{"detail":"Incorrect email or password"}`, string(resp.Body))
	require.Zero(t, srv.refreshCount())
	require.Zero(t, sess.teardowns.Load())

	httpErr := resp.Err().(*HTTPError)
	require.Equal(t, "Incorrect email or password", httpErr.Detail)
	require.False(t, errors.Is(httpErr, ErrSessionExpired))
}

func TestNonAuthErrorsPassThrough(t *testing.T) {
	srv := &authServer{valid: "tok-0"}
	c, _ := newTestClient(t, srv)

	resp, err := c.Send(context.Background(), NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.JSONEq(t, `{"detail":"internal error"}`, string(resp.Body))
	require.Zero(t, srv.refreshCount())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestRefreshNetworkErrorRejectsAndClearsSession(t *testing.T) {
	netErr := errors.New("connection refused")
	hc := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/auth/refresh") {
			return nil, netErr
		}
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(`{"detail":"Token expired"}`)),
		}, nil
	})

	sess := &countingSession{}
	c, err := New("http://api.example.com/api/v1", WithHTTPClient(hc), WithSession(sess))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), NewRequest(http.MethodGet, "/reminders", nil))
	require.ErrorIs(t, err, netErr)
	require.ErrorIs(t, err, ErrSessionExpired)
	require.EqualValues(t, 1, sess.teardowns.Load())
	require.EqualValues(t, 1, c.RefreshCount())
}

func TestTransportErrorPassesThrough(t *testing.T) {
	netErr := errors.New("no route to host")
	hc := roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, netErr })

	c, err := New("http://api.example.com", WithHTTPClient(hc))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), NewRequest(http.MethodGet, "/reminders", nil))
	require.ErrorIs(t, err, netErr)
	require.False(t, errors.Is(err, ErrSessionExpired))
	require.Zero(t, c.RefreshCount())
}

func TestCancelledWaiterIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	srv := &authServer{valid: "tok-0"}
	c, _ := newTestClient(t, srv)
	srv.onRefresh = func() { <-release }

	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), NewRequest(http.MethodGet, "/reminders/1", nil))
		leaderDone <- err
	}()

	// wait for the leader to own the refresh
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.refreshing
	}, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		_, err := c.Send(ctx, NewRequest(http.MethodGet, "/reminders/2", nil))
		waiterDone <- err
	}()
	waitForWaiters(t, c, 1)

	cancel()
	require.ErrorIs(t, <-waiterDone, context.Canceled)

	close(release)
	require.NoError(t, <-leaderDone)
	require.Equal(t, 1, srv.refreshCount())
}

func TestIsAuthEndpoint(t *testing.T) {
	c, err := New("http://api.example.com/api/v1")
	require.NoError(t, err)

	for _, p := range []string{"/auth/login", "/auth/signup", "/auth/refresh", "/auth/password-reset/confirm"} {
		require.True(t, c.IsAuthEndpoint(p), p)
	}
	for _, p := range []string{"/reminders", "/users/me", "/auth/logout", "/auth/password/change"} {
		require.False(t, c.IsAuthEndpoint(p), p)
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New("localhost:8000")
	require.Error(t, err)
}
