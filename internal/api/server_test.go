package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"asistencia/internal/challenge"
	"asistencia/internal/directory"
	"asistencia/internal/history"
	"asistencia/internal/schedule"
	"asistencia/internal/session"
)

const testID = "1712345678"

type fakeDirectory struct {
	users     []directory.User
	rows      []directory.Record
	listErr   error
	recordErr error
	recorded  []int64
}

func (f *fakeDirectory) ListUsers(ctx context.Context) ([]directory.User, error) {
	return f.users, f.listErr
}

func (f *fakeDirectory) RecordAttendance(ctx context.Context, recordID int64) (string, error) {
	if f.recordErr != nil {
		return "", f.recordErr
	}
	f.recorded = append(f.recorded, recordID)
	return "attendance recorded", nil
}

func (f *fakeDirectory) ListAttendance(ctx context.Context, recordID int64) ([]directory.Record, error) {
	return f.rows, nil
}

func newTestRouter(t *testing.T, dir *fakeDirectory) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	table, err := schedule.Parse("wednesday=17:00:00,saturday=08:00:00")
	require.NoError(t, err)

	srv := NewServer(Options{
		Directory: dir,
		Sessions:  session.NewMemoryStore(time.Hour),
		Generator: challenge.NewGeneratorFromSource(rand.NewSource(7)),
		Monitor: history.NewMonitor(func(ctx context.Context, recordID int64) ([]schedule.Decorated, error) {
			rows, err := dir.ListAttendance(ctx, recordID)
			if err != nil {
				return nil, err
			}
			out := make([]schedule.Decorated, 0, len(rows))
			for _, r := range rows {
				out = append(out, schedule.Decorate(r, table))
			}
			return out, nil
		}, time.Hour, time.Hour, nil),
		JWTIssuer:     "asistencia-test",
		JWTSigningKey: "test-secret",
		TokenTTL:      time.Hour,
		PageSize:      10,
	})

	return NewRouter(RouterOptions{
		Server:        srv,
		JWTIssuer:     "asistencia-test",
		JWTSigningKey: "test-secret",
	})
}

func defaultUsers() []directory.User {
	return []directory.User{
		{Record: "7", Username: "gmarquez", NationalID: testID, FirstNames: "Gabriel", LastNames: "Marquez"},
	}
}

type loginResponse struct {
	Token     string              `json:"token"`
	User      userView            `json:"user"`
	Challenge challenge.Challenge `json:"challenge"`
}

func doJSON(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doLogin(t *testing.T, r *gin.Engine, username, password string) (loginResponse, int) {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/v1/login", "", gin.H{"username": username, "password": password})
	var out loginResponse
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out, w.Code
}

func TestLoginHappyPath(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{users: defaultUsers()})

	out, code := doLogin(t, r, " GMarquez ", "17-1234-5678")
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, out.Token)
	require.Equal(t, "7", out.User.Record)
	require.Equal(t, "Gabriel Marquez", out.User.FullName)
	require.NotEqual(t, out.Challenge.PosA, out.Challenge.PosB)
	require.GreaterOrEqual(t, out.Challenge.PosA, 1)
	require.LessOrEqual(t, out.Challenge.PosB, 10)
}

func TestLoginRejectsBadInputBeforeNetwork(t *testing.T) {
	dir := &fakeDirectory{listErr: errors.New("should not be called")}
	r := newTestRouter(t, dir)

	_, code := doLogin(t, r, "", testID)
	require.Equal(t, http.StatusBadRequest, code)

	_, code = doLogin(t, r, "gmarquez", "123")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestLoginUnknownUserAndWrongPassword(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{users: defaultUsers()})

	_, code := doLogin(t, r, "nobody", testID)
	require.Equal(t, http.StatusUnauthorized, code)

	_, code = doLogin(t, r, "gmarquez", "9999999999")
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestLoginDirectoryDown(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{listErr: errors.New("connection refused")})
	_, code := doLogin(t, r, "gmarquez", testID)
	require.Equal(t, http.StatusBadGateway, code)
}

func answers(ch challenge.Challenge) (string, string) {
	return string(testID[ch.PosA-1]), string(testID[ch.PosB-1])
}

func TestAttendAcceptsCorrectDigitsAndRotates(t *testing.T) {
	dir := &fakeDirectory{users: defaultUsers()}
	r := newTestRouter(t, dir)
	out, _ := doLogin(t, r, "gmarquez", testID)

	a, b := answers(out.Challenge)
	w := doJSON(r, http.MethodPost, "/v1/attendance", out.Token, gin.H{"digit_a": a, "digit_b": b})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []int64{7}, dir.recorded)

	var resp struct {
		Challenge challenge.Challenge `json:"challenge"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEqual(t, 0, resp.Challenge.PosA)

	// The spent pair is gone: the stored challenge is the returned one.
	w = doJSON(r, http.MethodGet, "/v1/challenge", out.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var current struct {
		Challenge challenge.Challenge `json:"challenge"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &current))
	require.Equal(t, resp.Challenge, current.Challenge)
}

// replayDraws predicts the server generator's output by replaying the
// same seeded sequence: draw n is the challenge after n-1 rotations.
func replayDraws(n int) challenge.Challenge {
	g := challenge.NewGeneratorFromSource(rand.NewSource(7))
	var ch challenge.Challenge
	for i := 0; i < n; i++ {
		ch = g.New()
	}
	return ch
}

func TestAttendWrongDigitsRejectsAndRotates(t *testing.T) {
	dir := &fakeDirectory{users: defaultUsers()}
	r := newTestRouter(t, dir)
	out, _ := doLogin(t, r, "gmarquez", testID)
	require.Equal(t, replayDraws(1), out.Challenge)

	w := doJSON(r, http.MethodPost, "/v1/attendance", out.Token, gin.H{"digit_a": "x", "digit_b": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, dir.recorded)

	var resp struct {
		Challenge challenge.Challenge `json:"challenge"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, replayDraws(2), resp.Challenge)
}

func TestAttendUpstreamFailureStillSpendsChallenge(t *testing.T) {
	dir := &fakeDirectory{users: defaultUsers(), recordErr: errors.New("service down")}
	r := newTestRouter(t, dir)
	out, _ := doLogin(t, r, "gmarquez", testID)

	a, b := answers(out.Challenge)
	w := doJSON(r, http.MethodPost, "/v1/attendance", out.Token, gin.H{"digit_a": a, "digit_b": b})
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp struct {
		Challenge challenge.Challenge `json:"challenge"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, replayDraws(2), resp.Challenge)
}

func TestAttendWithoutTokenIsUnauthorized(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{users: defaultUsers()})
	w := doJSON(r, http.MethodPost, "/v1/attendance", "", gin.H{"digit_a": "1", "digit_b": "2"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHistoryDecoratesFiltersAndPages(t *testing.T) {
	var rows []directory.Record
	for i := 1; i <= 25; i++ {
		rows = append(rows, directory.Record{
			Record: "7",
			Date:   fmt.Sprintf("2025-05-%02d", i),
			Time:   "08:10:00",
		})
	}
	dir := &fakeDirectory{users: defaultUsers(), rows: rows}
	r := newTestRouter(t, dir)
	out, _ := doLogin(t, r, "gmarquez", testID)

	w := doJSON(r, http.MethodGet, "/v1/history?mode=all&page=4&page_size=10", out.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Mode   string       `json:"mode"`
		Result history.Page `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "all", resp.Mode)
	require.Equal(t, 3, resp.Result.TotalPages)
	require.Equal(t, 3, resp.Result.Page)
	require.Equal(t, 21, resp.Result.From)
	require.Equal(t, 25, resp.Result.To)
	require.Len(t, resp.Result.Items, 5)

	// 2025-05-03 is a Saturday; 08:10:00 is ten minutes late.
	w = doJSON(r, http.MethodGet, "/v1/history?mode=day&day=2025-05-03", out.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Result.Total)
	require.Equal(t, "Saturday", resp.Result.Items[0].Weekday)
	require.Equal(t, "00:10:00 late", resp.Result.Items[0].Novelty)
	require.True(t, resp.Result.Items[0].Late)
}

func TestLogoutEndsSession(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{users: defaultUsers()})
	out, _ := doLogin(t, r, "gmarquez", testID)

	w := doJSON(r, http.MethodPost, "/v1/logout", out.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/challenge", out.Token, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
