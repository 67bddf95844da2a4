// Package fakebackend is an in-memory stand-in for the reminder API, used by
// tests to drive the client end to end.
package fakebackend

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

type user struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	password  string
}

type reminder struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	PhoneNumber string    `json:"phone_number"`
	DateTime    time.Time `json:"date_time"`
	Timezone    string    `json:"timezone"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Backend holds all users, sessions and reminders
type Backend struct {
	mu           sync.Mutex
	router       *mux.Router
	users        map[string]*user
	reminders    map[int]*reminder
	access       map[string]int
	refresh      map[string]int
	resets       map[string]int
	nextUserID   int
	nextRemID    int
	refreshCalls int
	failRefresh  bool
}

// New returns a backend serving under /api/v1
func New() *Backend {
	b := &Backend{
		users:      map[string]*user{},
		reminders:  map[int]*reminder{},
		access:     map[string]int{},
		refresh:    map[string]int{},
		resets:     map[string]int{},
		nextUserID: 1,
		nextRemID:  1,
	}
	b.setupRoutes()
	return b
}

// ServeHTTP implements http.Handler
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

func (b *Backend) setupRoutes() {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/signup", b.signupHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", b.loginHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", b.refreshHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", b.logoutHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/password-reset/request", b.resetRequestHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/password-reset/confirm", b.resetConfirmHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/password/change", b.authed(b.changePasswordHandler)).Methods(http.MethodPost)
	api.HandleFunc("/users/me", b.authed(b.meHandler)).Methods(http.MethodGet)

	api.HandleFunc("/reminders", b.authed(b.listRemindersHandler)).Methods(http.MethodGet)
	api.HandleFunc("/reminders", b.authed(b.createReminderHandler)).Methods(http.MethodPost)
	api.HandleFunc("/reminders/stats", b.authed(b.statsHandler)).Methods(http.MethodGet)
	api.HandleFunc("/reminders/{id:[0-9]+}", b.authed(b.getReminderHandler)).Methods(http.MethodGet)
	api.HandleFunc("/reminders/{id:[0-9]+}", b.authed(b.updateReminderHandler)).Methods(http.MethodPut)
	api.HandleFunc("/reminders/{id:[0-9]+}", b.authed(b.deleteReminderHandler)).Methods(http.MethodDelete)

	b.router = r
}

// ExpireAccessTokens invalidates every access cookie handed out so far
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = map[string]int{}
}

// FailRefresh makes every refresh call answer 401
func (b *Backend) FailRefresh(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRefresh = fail
}

// RefreshCalls counts hits on /auth/refresh
func (b *Backend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// ResetToken returns the last password reset token issued for email
func (b *Backend) ResetToken(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[email]
	if !ok {
		return ""
	}
	for token, id := range b.resets {
		if id == u.ID {
			return token
		}
	}
	return ""
}

// SetStatus changes a reminder's status the way the call dispatcher would
func (b *Backend) SetStatus(id int, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rem, ok := b.reminders[id]; ok {
		rem.Status = status
	}
}

func (b *Backend) authed(next func(w http.ResponseWriter, r *http.Request, u *user)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(AccessCookie)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		b.mu.Lock()
		id, ok := b.access[cookie.Value]
		var u *user
		if ok {
			u = b.userByID(id)
		}
		b.mu.Unlock()

		if u == nil {
			writeDetail(w, http.StatusUnauthorized, "Token expired")
			return
		}
		next(w, r, u)
	}
}

func (b *Backend) userByID(id int) *user {
	for _, u := range b.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

type credentialsBody struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (b *Backend) signupHandler(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !readJSON(w, r, &body) {
		return
	}

	b.mu.Lock()
	if _, exists := b.users[body.Email]; exists {
		b.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	now := time.Now().UTC()
	u := &user{ID: b.nextUserID, Email: body.Email, password: body.Password, CreatedAt: now, UpdatedAt: now}
	b.nextUserID++
	b.users[body.Email] = u
	b.mu.Unlock()

	b.issueTokens(w, u, body.RememberMe)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Account created"})
}

func (b *Backend) loginHandler(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !readJSON(w, r, &body) {
		return
	}

	b.mu.Lock()
	u, ok := b.users[body.Email]
	b.mu.Unlock()
	if !ok || u.password != body.Password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	b.issueTokens(w, u, body.RememberMe)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged in"})
}

func (b *Backend) issueTokens(w http.ResponseWriter, u *user, rememberMe bool) {
	access, refresh := uuid.NewString(), uuid.NewString()

	b.mu.Lock()
	b.access[access] = u.ID
	b.refresh[refresh] = u.ID
	b.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: access, Path: "/", HttpOnly: true, MaxAge: 30 * 60})
	refreshCookie := &http.Cookie{Name: RefreshCookie, Value: refresh, Path: "/", HttpOnly: true}
	if rememberMe {
		refreshCookie.MaxAge = 7 * 24 * 60 * 60
	}
	http.SetCookie(w, refreshCookie)
}

func (b *Backend) refreshHandler(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.refreshCalls++
	fail := b.failRefresh
	b.mu.Unlock()

	cookie, err := r.Cookie(RefreshCookie)
	if fail || err != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	b.mu.Lock()
	id, ok := b.refresh[cookie.Value]
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	access := uuid.NewString()
	b.mu.Lock()
	b.access[access] = id
	b.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: access, Path: "/", HttpOnly: true, MaxAge: 30 * 60})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Token refreshed"})
}

func (b *Backend) logoutHandler(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	if c, err := r.Cookie(AccessCookie); err == nil {
		delete(b.access, c.Value)
	}
	if c, err := r.Cookie(RefreshCookie); err == nil {
		delete(b.refresh, c.Value)
	}
	b.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) resetRequestHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	b.mu.Lock()
	if u, ok := b.users[body.Email]; ok {
		b.resets[uuid.NewString()] = u.ID
	}
	b.mu.Unlock()

	// same answer whether or not the account exists
	writeJSON(w, http.StatusOK, map[string]string{"message": "If the email exists, a reset link has been sent"})
}

func (b *Backend) resetConfirmHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ResetToken  string `json:"reset_token"`
		NewPassword string `json:"new_password"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.resets[body.ResetToken]
	if !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	delete(b.resets, body.ResetToken)
	if u := b.userByID(id); u != nil {
		u.password = body.NewPassword
		u.UpdatedAt = time.Now().UTC()
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successful"})
}

func (b *Backend) changePasswordHandler(w http.ResponseWriter, r *http.Request, u *user) {
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if u.password != body.CurrentPassword {
		writeDetail(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	u.password = body.NewPassword
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

func (b *Backend) meHandler(w http.ResponseWriter, r *http.Request, u *user) {
	writeJSON(w, http.StatusOK, u)
}

type reminderBody struct {
	Title       *string    `json:"title"`
	Message     *string    `json:"message"`
	PhoneNumber *string    `json:"phone_number"`
	DateTime    *time.Time `json:"date_time"`
	Timezone    *string    `json:"timezone"`
	Status      *string    `json:"status"`
}

func (b *Backend) listRemindersHandler(w http.ResponseWriter, r *http.Request, u *user) {
	q := r.URL.Query()
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 100
	}
	status := q.Get("status")
	search := strings.ToLower(q.Get("search"))

	b.mu.Lock()
	var matched []reminder
	for _, rem := range b.reminders {
		if rem.UserID != u.ID {
			continue
		}
		if status != "" && rem.Status != status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(rem.Title), search) &&
			!strings.Contains(strings.ToLower(rem.Message), search) {
			continue
		}
		matched = append(matched, *rem)
	}
	b.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].DateTime.Equal(matched[j].DateTime) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].DateTime.Before(matched[j].DateTime)
	})

	total := len(matched)
	if skip > total {
		skip = total
	}
	end := skip + limit
	if end > total {
		end = total
	}

	items := matched[skip:end]
	if items == nil {
		items = []reminder{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "total": total})
}

func (b *Backend) createReminderHandler(w http.ResponseWriter, r *http.Request, u *user) {
	var body reminderBody
	if !readJSON(w, r, &body) {
		return
	}
	if body.Title == nil || body.Message == nil || body.PhoneNumber == nil || body.DateTime == nil || body.Timezone == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Missing required fields")
		return
	}

	now := time.Now().UTC()
	b.mu.Lock()
	rem := &reminder{
		ID:          b.nextRemID,
		UserID:      u.ID,
		Title:       *body.Title,
		Message:     *body.Message,
		PhoneNumber: *body.PhoneNumber,
		DateTime:    *body.DateTime,
		Timezone:    *body.Timezone,
		Status:      "scheduled",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.nextRemID++
	b.reminders[rem.ID] = rem
	out := *rem
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (b *Backend) statsHandler(w http.ResponseWriter, r *http.Request, u *user) {
	counts := map[string]int{"total": 0, "scheduled": 0, "completed": 0, "failed": 0}

	b.mu.Lock()
	for _, rem := range b.reminders {
		if rem.UserID != u.ID {
			continue
		}
		counts["total"]++
		counts[rem.Status]++
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, counts)
}

// ownedReminder must be called with b.mu held
func (b *Backend) ownedReminder(r *http.Request, u *user) *reminder {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	rem, ok := b.reminders[id]
	if !ok || rem.UserID != u.ID {
		return nil
	}
	return rem
}

func (b *Backend) getReminderHandler(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	rem := b.ownedReminder(r, u)
	var out reminder
	if rem != nil {
		out = *rem
	}
	b.mu.Unlock()

	if rem == nil {
		writeDetail(w, http.StatusNotFound, "Reminder not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) updateReminderHandler(w http.ResponseWriter, r *http.Request, u *user) {
	var body reminderBody
	if !readJSON(w, r, &body) {
		return
	}

	b.mu.Lock()
	rem := b.ownedReminder(r, u)
	if rem == nil {
		b.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Reminder not found")
		return
	}
	if body.Title != nil {
		rem.Title = *body.Title
	}
	if body.Message != nil {
		rem.Message = *body.Message
	}
	if body.PhoneNumber != nil {
		rem.PhoneNumber = *body.PhoneNumber
	}
	if body.DateTime != nil {
		rem.DateTime = *body.DateTime
	}
	if body.Timezone != nil {
		rem.Timezone = *body.Timezone
	}
	if body.Status != nil {
		rem.Status = *body.Status
	}
	rem.UpdatedAt = time.Now().UTC()
	out := *rem
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) deleteReminderHandler(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	rem := b.ownedReminder(r, u)
	if rem != nil {
		delete(b.reminders, rem.ID)
	}
	b.mu.Unlock()

	if rem == nil {
		writeDetail(w, http.StatusNotFound, "Reminder not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
