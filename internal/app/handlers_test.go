package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealduty-service/internal/models"
	"mealduty-service/internal/store"
)

const allowedEmail = "julien@example.com"

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type recordedEvent struct {
	key string
	ev  bookingEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{key: key, ev: v.(bookingEvent)})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type testEnv struct {
	app    *App
	router *gin.Engine
	store  *store.Memory
	events *fakePublisher
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	pub := &fakePublisher{}
	sessions := NewSessions("test-secret", time.Hour, false)
	sessions.now = func() time.Time { return fixedNow }

	a := &App{
		Store:  mem,
		Events: pub,
		Stats: StatsConfig{
			Reasons:    []string{"Examens", "Voyage"},
			People:     []string{"Julien"},
			Breakdowns: allBreakdowns,
		},
		Gate: &Gate{
			Allow:    NewFoldAllowList([]string{allowedEmail}),
			Sessions: sessions,
		},
		Sessions:     sessions,
		StoreTimeout: time.Second,
		Now:          func() time.Time { return fixedNow },
	}
	router := gin.New()
	a.Register(router)

	token, err := sessions.Issue(allowedEmail)
	require.NoError(t, err)
	return &testEnv{app: a, router: router, store: mem, events: pub, token: token}
}

func (e *testEnv) do(t *testing.T, method string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, "/api/book", &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) list(t *testing.T) ListResponse {
	t.Helper()
	w := e.do(t, http.MethodGet, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Message
}

func TestBookingLifecycle(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, gin.H{"date": "2024-03-01", "meal": "lunch", "reason": "Examens"}, e.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Booking created successfully", message(t, w))

	w = e.do(t, http.MethodPost, gin.H{"date": "2024-03-01", "meal": "lunch", "reason": "Voyage"}, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Booking updated successfully", message(t, w))

	resp := e.list(t)
	require.Len(t, resp.Bookings, 1)
	assert.Equal(t, "Voyage", resp.Bookings[0].Reason)
	assert.False(t, resp.Bookings[0].Remboursee)

	w = e.do(t, http.MethodPatch, gin.H{"date": "2024-03-01", "meal": "lunch"}, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Réservation remboursée avec succès.", message(t, w))

	resp = e.list(t)
	require.Len(t, resp.Bookings, 1)
	assert.True(t, resp.Bookings[0].Remboursee)
	assert.Equal(t, "Voyage", resp.Bookings[0].Reason, "PATCH leaves other fields")
	assert.Equal(t, 1, resp.Stats.RefundToday)

	w = e.do(t, http.MethodDelete, gin.H{"date": "2024-03-01", "meal": "lunch"}, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Booking deleted successfully", message(t, w))

	resp = e.list(t)
	assert.Empty(t, resp.Bookings)
	assert.NotNil(t, resp.Bookings)

	keys := make([]string, 0, len(e.events.events))
	for _, ev := range e.events.events {
		keys = append(keys, ev.key)
	}
	assert.Equal(t, []string{"booking.saved", "booking.saved", "booking.reimbursed", "booking.deleted"}, keys)
	assert.True(t, *e.events.events[0].ev.Created)
	assert.False(t, *e.events.events[1].ev.Created)
}

func TestPostClearsOmittedFields(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, gin.H{"date": "2024-03-02", "meal": "dinner", "reason": "Examens", "reimbursedBy": "Julien", "remboursee": true}, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, gin.H{"date": "2024-03-02", "meal": "dinner", "reason": "Examens"}, e.token)
	require.Equal(t, http.StatusOK, w.Code)

	resp := e.list(t)
	require.Len(t, resp.Bookings, 1)
	assert.Empty(t, resp.Bookings[0].ReimbursedBy)
	assert.False(t, resp.Bookings[0].Remboursee)
}

func TestPostValidation(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		body   any
		fields []string
	}{
		{"missing date", gin.H{"meal": "lunch"}, []string{"date"}},
		{"bad meal", gin.H{"date": "2024-03-01", "meal": "breakfast"}, []string{"meal"}},
		{"empty reason", gin.H{"date": "2024-03-01", "meal": "lunch", "reason": ""}, []string{"reason"}},
		{"everything wrong", gin.H{"reason": ""}, []string{"date", "meal", "reason"}},
		{"wrong type", gin.H{"date": "2024-03-01", "meal": "lunch", "remboursee": "yes"}, []string{"remboursee"}},
		{"malformed", "{not json", []string{"body"}},
		{"empty body", "", []string{"body"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, tt.body, e.token)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var body struct {
				Message string       `json:"message"`
				Errors  []FieldError `json:"errors"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "Invalid input", body.Message)
			var got []string
			for _, f := range body.Errors {
				got = append(got, f.Field)
				assert.NotEmpty(t, f.Message)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
	assert.Empty(t, e.list(t).Bookings)
}

func TestReasonMayBeOmitted(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, gin.H{"date": "2024-03-01", "meal": "dinner"}, e.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := e.list(t)
	require.Len(t, resp.Bookings, 1)
	assert.Equal(t, 1, resp.Stats.ReasonStats[OtherReason].Total)
}

func TestMissingTargetsReturnNotFound(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPatch, gin.H{"date": "2030-01-01", "meal": "lunch"}, e.token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Aucune réservation trouvée à rembourser.", message(t, w))

	w = e.do(t, http.MethodDelete, gin.H{"date": "2030-01-01", "meal": "lunch"}, e.token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No booking found for the given date and meal", message(t, w))

	w = e.do(t, http.MethodDelete, gin.H{"date": "2030-01-01"}, e.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, e.events.events)
}

func TestPatchIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, gin.H{"date": "2024-03-01", "meal": "lunch"}, e.token).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodPatch, gin.H{"date": "2024-03-01", "meal": "lunch"}, e.token).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodPatch, gin.H{"date": "2024-03-01", "meal": "lunch"}, e.token).Code)
}

func TestMutationsRequireAllowedSession(t *testing.T) {
	e := newTestEnv(t)

	stranger, err := e.app.Sessions.Issue("someone@else.org")
	require.NoError(t, err)
	other := NewSessions("other-secret", time.Hour, false)
	other.now = func() time.Time { return fixedNow }
	forged, err := other.Issue(allowedEmail)
	require.NoError(t, err)

	body := gin.H{"date": "2024-03-01", "meal": "lunch", "reason": "Examens"}
	for name, token := range map[string]string{"none": "", "not allowed": stranger, "bad signature": forged} {
		t.Run(name, func(t *testing.T) {
			for _, method := range []string{http.MethodPost, http.MethodPatch, http.MethodDelete} {
				w := e.do(t, method, body, token)
				assert.Equal(t, http.StatusUnauthorized, w.Code, method)
				assert.Equal(t, msgUnauthorized, message(t, w))
			}
		})
	}
	assert.Empty(t, e.list(t).Bookings, "store unchanged")
}

func TestSessionCookieAuthorizes(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/book", strings.NewReader(`{"date":"2024-03-01","meal":"lunch"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: e.token})
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestDevBypass(t *testing.T) {
	e := newTestEnv(t)
	e.app.Gate.Bypass = true

	w := e.do(t, http.MethodPost, gin.H{"date": "2024-03-01", "meal": "lunch"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatsInvariantOverManyWrites(t *testing.T) {
	e := newTestEnv(t)
	dates := []string{"2024-01-05", "2024-01-06", "2024-02-01", "2024-02-02"}
	for i, d := range dates {
		for _, meal := range []string{"lunch", "dinner"} {
			require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, gin.H{"date": d, "meal": meal, "remboursee": i%2 == 0}, e.token).Code)
		}
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodDelete, gin.H{"date": "2024-01-05", "meal": "lunch"}, e.token).Code)

	resp := e.list(t)
	assert.Equal(t, len(resp.Bookings), resp.Stats.Total)
	assert.Equal(t, resp.Stats.Total, resp.Stats.Actives+resp.Stats.Remboursee)
	assert.Equal(t, 7, resp.Stats.Total)
	assert.Equal(t, 3, resp.Stats.Remboursee)
}

type failingStore struct{ store.Store }

func (failingStore) List(context.Context) ([]models.Booking, error) {
	return nil, errors.New("connection reset")
}

func (failingStore) Upsert(context.Context, models.Booking) (bool, error) {
	return false, errors.New("connection reset")
}

func (failingStore) Ping(context.Context) error { return errors.New("connection reset") }

func TestStoreFailuresAreOpaque(t *testing.T) {
	e := newTestEnv(t)
	e.app.Store = failingStore{}

	w := e.do(t, http.MethodGet, nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, msgInternal, message(t, w))

	w = e.do(t, http.MethodPost, gin.H{"date": "2024-03-01", "meal": "lunch"}, e.token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	hw := httptest.NewRecorder()
	e.router.ServeHTTP(hw, req)
	assert.Equal(t, http.StatusServiceUnavailable, hw.Code)
}
