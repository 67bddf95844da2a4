package main

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvcrn/callme-client/internal/fakebackend"
	"github.com/dvcrn/callme-client/internal/reminders"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t       *testing.T
	backend *fakebackend.Backend
	api     string
	state   string
}

func newHarness(t *testing.T) *harness {
	backend := fakebackend.New()
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	return &harness{
		t:       t,
		backend: backend,
		api:     ts.URL + "/api/v1",
		state:   filepath.Join(t.TempDir(), "callme", "state.db"),
	}
}

func (h *harness) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	full := append([]string{"--api", h.api, "--state", h.state}, args...)
	code := run(full, &stdout, &stderr, func(string) string { return "" })
	return code, stdout.String(), stderr.String()
}

func TestSessionSurvivesBetweenInvocations(t *testing.T) {
	h := newHarness(t)

	code, out, errOut := h.run("signup", "--email", "test@example.com", "--password", "TestPass123!")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "logged in as test@example.com")

	code, out, _ = h.run("whoami")
	require.Equal(t, 0, code)
	require.Contains(t, out, "test@example.com")

	at := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	code, out, errOut = h.run("add", "--title", "Call mom", "--message", "Say hi",
		"--phone", "+12015550123", "--at", at)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Scheduled reminder 1")

	code, out, _ = h.run("list")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Call mom")
	require.Contains(t, out, "Page 1 of 1 (1 total)")

	// expired access cookie is refreshed without the user noticing
	h.backend.ExpireAccessTokens()
	code, out, _ = h.run("stats")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Scheduled: 1")
	require.Equal(t, 1, h.backend.RefreshCalls())

	code, out, _ = h.run("edit", "--id", "1", "--status", "completed")
	require.Equal(t, 0, code)
	require.Contains(t, out, "completed")

	code, out, _ = h.run("delete", "--id", "1")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Deleted reminder 1")

	code, out, _ = h.run("logout")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Logged out")

	code, _, errOut = h.run("whoami")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "session expired")
}

func TestFailedRefreshReportsExpiredSession(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("signup", "--email", "test@example.com", "--password", "TestPass123!")
	require.Equal(t, 0, code, errOut)

	h.backend.ExpireAccessTokens()
	h.backend.FailRefresh(true)

	code, _, errOut = h.run("list")
	require.Equal(t, 1, code)
	require.True(t, strings.HasSuffix(errOut, "session expired, please log in again\n"), errOut)
}

func TestWrongPasswordIsReportedAsIs(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("login", "--email", "nobody@example.com", "--password", "TestPass123!")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "Incorrect email or password")
	require.Zero(t, h.backend.RefreshCalls())
}

func TestValidationErrorsArePrintedPerField(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("signup", "--email", "nope", "--password", "weak")
	require.Equal(t, 1, code)
	require.True(t, strings.HasPrefix(errOut, "email: Invalid email address\n"), errOut)
	require.Contains(t, errOut, "password: Password must be at least 8 characters")
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(t)

	code, _, _ := h.run("list", "--status", "pending")
	require.Equal(t, 2, code)

	code, out, _ := h.run("--help")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Usage:")

	code, out, _ = h.run("version")
	require.Equal(t, 0, code)
	require.Contains(t, out, "callme unknown")
}

func TestParseWhen(t *testing.T) {
	got, err := parseWhen("2030-01-02T09:30", "Asia/Kolkata")
	require.NoError(t, err)
	require.Equal(t, time.Date(2030, 1, 2, 4, 0, 0, 0, time.UTC), got.UTC())

	got, err = parseWhen("2030-01-02T09:30:00Z", "Nowhere/Special")
	require.NoError(t, err)
	require.Equal(t, 9, got.Hour())

	got, err = parseWhen("2030-01-02T09:30", "UTC+5")
	require.NoError(t, err)
	require.Equal(t, time.Date(2030, 1, 2, 4, 30, 0, 0, time.UTC), got.UTC())

	got, err = parseWhen("2030-01-02T09:30", "UTC-3")
	require.NoError(t, err)
	require.Equal(t, time.Date(2030, 1, 2, 12, 30, 0, 0, time.UTC), got.UTC())

	_, err = parseWhen("tomorrow", "UTC")
	require.Error(t, err)
}

func TestFormatWhenUsesFixedOffset(t *testing.T) {
	r := reminders.Reminder{
		DateTime: time.Date(2030, 1, 2, 4, 30, 0, 0, time.UTC),
		Timezone: "UTC+5",
	}
	require.Equal(t, "2030-01-02 09:30 UTC+5", formatWhen(r))
}

func TestNextUserNeverSeesPreviousUsersReminders(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("signup", "--email", "alice@example.com", "--password", "TestPass123!")
	require.Equal(t, 0, code, errOut)
	at := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	code, _, errOut = h.run("add", "--title", "Alice secret", "--message", "Private",
		"--phone", "+12015550123", "--at", at)
	require.Equal(t, 0, code, errOut)
	code, out, _ := h.run("list")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Alice secret")

	code, _, errOut = h.run("signup", "--email", "bob@example.com", "--password", "TestPass123!")
	require.Equal(t, 0, code, errOut)
	code, out, _ = h.run("list")
	require.Equal(t, 0, code)
	require.NotContains(t, out, "Alice secret")
	require.Contains(t, out, "No reminders found")

	code, _, errOut = h.run("login", "--email", "alice@example.com", "--password", "TestPass123!")
	require.Equal(t, 0, code, errOut)
	code, out, _ = h.run("list")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Alice secret")
}

func TestFixedOffsetTimezoneAndEditKeepsStoredZone(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("signup", "--email", "test@example.com", "--password", "TestPass123!")
	require.Equal(t, 0, code, errOut)

	code, out, errOut := h.run("add", "--title", "Standup", "--message", "Join the call",
		"--phone", "+12015550123", "--at", "2031-01-02T09:30", "--timezone", "UTC+5")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "for 2031-01-02 09:30 UTC+5")

	code, _, errOut = h.run("edit", "--id", "1", "--at", "2031-01-03T10:00")
	require.Equal(t, 0, code, errOut)

	code, out, _ = h.run("list")
	require.Equal(t, 0, code)
	require.Contains(t, out, "2031-01-03 10:00 UTC+5")
	require.Contains(t, out, "On this page: 1 scheduled, 0 completed, 0 failed")
}
