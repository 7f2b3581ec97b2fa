package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/auth"
	"github.com/jason-s-yu/rally/internal/coordinator"
	"github.com/jason-s-yu/rally/internal/live"
	"github.com/jason-s-yu/rally/internal/memstore"
	"github.com/jason-s-yu/rally/internal/metrics"
	"github.com/jason-s-yu/rally/internal/models"
	"github.com/jason-s-yu/rally/internal/reservation"
	"github.com/jason-s-yu/rally/internal/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	handler http.Handler
	auth    *auth.Authenticator
	store   *memstore.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memstore.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hub := live.NewHub(logger)
	a, err := auth.New(time.Hour)
	require.NoError(t, err)

	srv := &Server{
		Reservations: reservation.NewService(store, nil, m, logger),
		Coordinator:  coordinator.NewService(store, schedule.New(rand.NewSource(1)), nil, hub, m, logger),
		Auth:         a,
		Hub:          hub,
		Gatherer:     reg,
		Logger:       logger,
	}
	return &testEnv{handler: srv.Routes(), auth: a, store: store}
}

func (e *testEnv) token(t *testing.T, user uuid.UUID) string {
	t.Helper()
	tok, err := e.auth.CreateJWT(user)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, user uuid.UUID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body=%s", w.Body.String())
	return v
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code, "body=%s", w.Body.String())
	resp := decode[errorResponse](t, w)
	assert.Equal(t, code, resp.Code)
	assert.NotEmpty(t, resp.Error)
}

func (e *testEnv) createSession(t *testing.T, owner uuid.UUID, capacity int, format models.Format) models.Session {
	t.Helper()
	w := e.do(t, http.MethodPost, "/sessions", owner, fmt.Sprintf(`{"capacity":%d,"format":%q}`, capacity, format))
	require.Equal(t, http.StatusCreated, w.Code, "body=%s", w.Body.String())
	return decode[models.Session](t, w)
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/sessions/"+uuid.NewString()+"/join", uuid.Nil, "")
	assertError(t, w, http.StatusUnauthorized, "unauthenticated")

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+uuid.NewString()+"/join", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assertError(t, rec, http.StatusUnauthorized, "unauthenticated")

	// the cookie works as well as the header
	owner := uuid.New()
	sess := e.createSession(t, owner, 4, models.FormatSingles)
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID.String()+"/join", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: e.token(t, uuid.New())})
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "body=%s", rec.Body.String())
}

func TestHealthAndBadParams(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/healthz", uuid.Nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	user := uuid.New()
	assertError(t, e.do(t, http.MethodPost, "/sessions/not-a-uuid/join", user, ""), http.StatusBadRequest, "invalid_input")
	assertError(t, e.do(t, http.MethodPost, "/sessions/"+uuid.NewString()+"/join", user, ""), http.StatusNotFound, "session_not_found")
	assertError(t, e.do(t, http.MethodPost, "/sessions", user, `{"capacity":`), http.StatusBadRequest, "invalid_input")
	assertError(t, e.do(t, http.MethodPost, "/matches/"+uuid.NewString()+"/score", user, `{"team1_score":3}`), http.StatusBadRequest, "invalid_input")
}

func TestSessionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	owner := uuid.New()
	sess := e.createSession(t, owner, 4, models.FormatSingles)
	base := "/sessions/" + sess.ID.String()

	players := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, p := range players {
		w := e.do(t, http.MethodPost, base+"/join", p, "")
		require.Equal(t, http.StatusOK, w.Code, "body=%s", w.Body.String())
		assert.True(t, decode[successResponse](t, w).Success)
	}
	assertError(t, e.do(t, http.MethodPost, base+"/join", uuid.New(), ""), http.StatusConflict, "full")
	assertError(t, e.do(t, http.MethodPost, base+"/join", players[0], ""), http.StatusConflict, "full")

	// leaving frees a seat for an invite
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, base+"/leave", players[2], "").Code)
	assertError(t, e.do(t, http.MethodPost, base+"/leave", owner, ""), http.StatusForbidden, "owner_cannot_leave")
	guest := uuid.New()
	w := e.do(t, http.MethodPost, base+"/invite", players[0], fmt.Sprintf(`{"user_id":%q}`, guest))
	require.Equal(t, http.StatusOK, w.Code, "body=%s", w.Body.String())

	assertError(t, e.do(t, http.MethodGet, base+"/schedule", owner, ""), http.StatusConflict, "not_started")
	assertError(t, e.do(t, http.MethodPost, base+"/start", players[0], `{"round_count":3}`), http.StatusForbidden, "not_owner")
	assertError(t, e.do(t, http.MethodPost, base+"/start", owner, `{"round_count":0}`), http.StatusBadRequest, "invalid_input")

	w = e.do(t, http.MethodPost, base+"/start", owner, `{"round_count":3}`)
	require.Equal(t, http.StatusOK, w.Code, "body=%s", w.Body.String())
	started := decode[roundsResponse](t, w)
	require.Len(t, started.Rounds, 3)

	assertError(t, e.do(t, http.MethodPost, base+"/start", owner, `{"round_count":3}`), http.StatusConflict, "already_started")
	assertError(t, e.do(t, http.MethodPost, base+"/join", uuid.New(), ""), http.StatusConflict, "already_started")

	w = e.do(t, http.MethodGet, base+"/schedule", players[1], "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, started, decode[roundsResponse](t, w))

	match := started.Rounds[0].Matches[0]
	scorePath := "/matches/" + match.ID.String() + "/score"
	assertError(t, e.do(t, http.MethodPost, scorePath, owner, `{"team1_score":7,"team2_score":7}`), http.StatusBadRequest, "invalid_input")
	assertError(t, e.do(t, http.MethodPost, scorePath, uuid.New(), `{"team1_score":11,"team2_score":7}`), http.StatusForbidden, "not_in_match")
	w = e.do(t, http.MethodPost, scorePath, match.Team1[0], `{"team1_score":11,"team2_score":7}`)
	require.Equal(t, http.StatusOK, w.Code, "body=%s", w.Body.String())

	w = e.do(t, http.MethodGet, base+"/standings", owner, "")
	require.Equal(t, http.StatusOK, w.Code)
	board := decode[leaderboardResponse](t, w).Leaderboard
	require.Len(t, board, 2)
	assert.Equal(t, match.Team1[0], board[0].PlayerID)
	assert.Equal(t, 1, board[0].Wins)
	assert.Equal(t, 4, board[0].PointDifferential)

	w = e.do(t, http.MethodGet, "/metrics", uuid.Nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `rally_reservations_total{outcome="admitted"} 4`)
	assert.Contains(t, body, `rally_reservations_total{outcome="full"} 2`)
	assert.Contains(t, body, `rally_events_started_total{format="singles"} 1`)
	assert.Contains(t, body, "rally_scores_submitted_total 1")
}

func TestCancelSession(t *testing.T) {
	e := newTestEnv(t)
	owner := uuid.New()
	sess := e.createSession(t, owner, 4, models.FormatDoubles)
	base := "/sessions/" + sess.ID.String()

	assertError(t, e.do(t, http.MethodPost, base+"/cancel", uuid.New(), ""), http.StatusForbidden, "not_owner")
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, base+"/cancel", owner, "").Code)
	assertError(t, e.do(t, http.MethodPost, base+"/join", uuid.New(), ""), http.StatusConflict, "cancelled")
}

func TestInviteRequiresUserID(t *testing.T) {
	e := newTestEnv(t)
	owner := uuid.New()
	sess := e.createSession(t, owner, 4, models.FormatSingles)
	base := "/sessions/" + sess.ID.String()

	assertError(t, e.do(t, http.MethodPost, base+"/invite", owner, `{}`), http.StatusBadRequest, "invalid_input")
	assertError(t, e.do(t, http.MethodPost, base+"/invite", owner, fmt.Sprintf(`{"user_id":%q}`, uuid.Nil)), http.StatusBadRequest, "invalid_input")

	got, err := e.store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SpotsFilled)
	ok, err := e.store.IsParticipant(context.Background(), sess.ID, uuid.Nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmptyStandings(t *testing.T) {
	e := newTestEnv(t)
	owner := uuid.New()
	sess := e.createSession(t, owner, 4, models.FormatSingles)

	w := e.do(t, http.MethodGet, "/sessions/"+sess.ID.String()+"/standings", owner, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"leaderboard":[]}`, w.Body.String())
}

func TestStandingsWebSocket(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	owner, rival := uuid.New(), uuid.New()
	sess := e.createSession(t, owner, 2, models.FormatSingles)
	base := "/sessions/" + sess.ID.String()
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, base+"/join", rival, "").Code)
	w := e.do(t, http.MethodPost, base+"/start", owner, `{"round_count":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	match := decode[roundsResponse](t, w).Rounds[0].Matches[0]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + base + "/standings/ws"
	c, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + e.token(t, rival)}},
	})
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	var snapshot standingsMessage
	require.NoError(t, wsjson.Read(ctx, c, &snapshot))
	assert.Equal(t, "standings", snapshot.Type)
	assert.Equal(t, sess.ID, snapshot.SessionID)
	assert.Empty(t, snapshot.Leaderboard)

	w = e.do(t, http.MethodPost, "/matches/"+match.ID.String()+"/score", rival, `{"team1_score":6,"team2_score":11}`)
	require.Equal(t, http.StatusOK, w.Code, "body=%s", w.Body.String())

	var update standingsMessage
	require.NoError(t, wsjson.Read(ctx, c, &update))
	require.Len(t, update.Leaderboard, 2)
	assert.Equal(t, 1, update.Leaderboard[0].Wins)
	assert.Equal(t, match.Team2[0], update.Leaderboard[0].PlayerID)
}
