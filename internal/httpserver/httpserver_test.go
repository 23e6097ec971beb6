package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/car_rental/internal/db"
	"github.com/Skotchmaster/car_rental/internal/hash"
	"github.com/Skotchmaster/car_rental/internal/logging"
	"github.com/Skotchmaster/car_rental/internal/mail"
	"github.com/Skotchmaster/car_rental/internal/models"
	"github.com/Skotchmaster/car_rental/internal/repo"
	"github.com/Skotchmaster/car_rental/internal/resettoken"
	"github.com/Skotchmaster/car_rental/internal/service"
	"github.com/Skotchmaster/car_rental/internal/tokens"
)

type outbox struct {
	sent []mail.Message
}

func (o *outbox) Send(_ context.Context, m mail.Message) error {
	o.sent = append(o.sent, m)
	return nil
}

func (o *outbox) last(t *testing.T) mail.Message {
	t.Helper()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1]
}

type testEnv struct {
	T      *testing.T
	E      *echo.Echo
	Repo   *repo.GormRepo
	Issuer *tokens.Issuer
	Mail   *outbox
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hash.Cost = bcrypt.MinCost

	gdb, err := db.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	r := repo.New(gdb)
	iss := &tokens.Issuer{
		AccessSecret:  []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}
	box := &outbox{}

	accounts := &service.AccountService{
		Repo:   r,
		Tokens: iss,
		Resets: &resettoken.Generator{Secret: iss.AccessSecret, Timeout: time.Hour},
		Mailer: box,
		Site:   service.Site{Scheme: "http", Domain: "cars.test"},
	}
	auth := &service.AuthService{Repo: r, Tokens: iss}

	e := New(&Deps{
		Accounts: &AccountHTTP{Svc: accounts},
		Auth:     &AuthHTTP{Svc: auth},
		Issuer:   iss,
		Log:      logging.NewWithWriter(io.Discard, "error"),
	})
	return &testEnv{T: t, E: e, Repo: r, Issuer: iss, Mail: box}
}

func (env *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	env.T.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(env.T, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) register(username string) uint {
	env.T.Helper()
	rec := env.do(http.MethodPost, "/users", map[string]string{
		"username":  username,
		"email":     username + "@example.com",
		"password":  "Sup3rSecret!",
		"password2": "Sup3rSecret!",
	}, "")
	require.Equal(env.T, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		ID uint `json:"id"`
	}
	require.NoError(env.T, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.ID
}

type pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (env *testEnv) login(username string) pair {
	env.T.Helper()
	rec := env.do(http.MethodPost, "/token", map[string]string{"username": username, "password": "Sup3rSecret!"}, "")
	require.Equal(env.T, http.StatusOK, rec.Code, rec.Body.String())
	var p pair
	require.NoError(env.T, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func (env *testEnv) makeStaff(id uint) {
	env.T.Helper()
	require.NoError(env.T, env.Repo.DB.Model(&models.User{}).Where("id = ?", id).Update("is_staff", true).Error)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/live", nil, "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/ready", nil, "").Code)
}

func TestRegister_Created(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/users", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "Sup3rSecret!", "password2": "Sup3rSecret!",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, true, body["is_active"])
	assert.Equal(t, true, body["email_sent"])
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Equal(t, "/users/1", rec.Header().Get(echo.HeaderLocation))

	require.Len(t, env.Mail.sent, 1)
	assert.Contains(t, env.Mail.sent[0].Body, "http://cars.test/email-verify?token=")
}

func TestRegister_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/users", map[string]string{
		"username": "alice", "email": "nope", "password": "Sup3rSecret!", "password2": "different!!",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode[map[string][]string](t, rec)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password2")

	env.register("alice")
	rec = env.do(http.MethodPost, "/users", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "Sup3rSecret!", "password2": "Sup3rSecret!",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "username")
}

func TestRegister_RejectedWhenAuthenticated(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice")
	tok := env.login("alice")

	rec := env.do(http.MethodPost, "/users", map[string]string{
		"username": "mallory", "email": "m@example.com", "password": "Sup3rSecret!", "password2": "Sup3rSecret!",
	}, tok.Access)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	n, err := env.Repo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestList_Scoped(t *testing.T) {
	env := newTestEnv(t)
	aliceID := env.register("alice")
	env.register("bob")
	rootID := env.register("root")
	env.makeStaff(rootID)

	alice := env.login("alice")
	root := env.login("root")

	rec := env.do(http.MethodGet, "/users", nil, root.Access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 3)

	rec = env.do(http.MethodGet, "/users", nil, alice.Access)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]map[string]any](t, rec)
	require.Len(t, users, 1)
	assert.EqualValues(t, aliceID, users[0]["id"])

	rec = env.do(http.MethodGet, "/users", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]map[string]any](t, rec))

	rec = env.do(http.MethodGet, "/users?page=2&size=2", nil, root.Access)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Count   int              `json:"count"`
		Results []map[string]any `json:"results"`
	}](t, rec)
	assert.Equal(t, 3, page.Count)
	assert.Len(t, page.Results, 1)
}

func TestRetrieveAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	aliceID := env.register("alice")
	bobID := env.register("bob")
	alice := env.login("alice")

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/users/1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/users/abc", nil, alice.Access).Code)

	path := "/users/" + itoa(aliceID)
	rec := env.do(http.MethodGet, path, nil, alice.Access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[map[string]any](t, rec)["username"])

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/users/"+itoa(bobID), nil, alice.Access).Code)

	rec = env.do(http.MethodPatch, path, map[string]string{"email": "alice@new.example.com"}, alice.Access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alice@new.example.com", decode[map[string]any](t, rec)["email"])

	rec = env.do(http.MethodPut, path, map[string]string{"email": "a@b.example.com"}, alice.Access)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "username")

	rec = env.do(http.MethodPut, path, map[string]string{"username": "alice_w"}, alice.Access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice_w", decode[map[string]any](t, rec)["username"])
}

func TestDestroy_SoftDelete(t *testing.T) {
	env := newTestEnv(t)
	aliceID := env.register("alice")
	env.register("bob")
	alice := env.login("alice")

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodDelete, "/users/"+itoa(aliceID), nil, "").Code)

	rec := env.do(http.MethodDelete, "/users/"+itoa(aliceID), nil, alice.Access)
	require.Equal(t, http.StatusNoContent, rec.Code)

	n, err := env.Repo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	u, err := env.Repo.GetUserByID(context.Background(), aliceID)
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/users", nil, alice.Access).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/token", map[string]string{"username": "alice", "password": "Sup3rSecret!"}, "").Code)
}

func TestBadBearer(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice")
	tok := env.login("alice")

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/users", nil, "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/users", nil, tok.Refresh).Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice")
	tok := env.login("alice")

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/logout", map[string]string{"refresh": tok.Refresh}, "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/logout", map[string]string{"refresh": "garbage"}, tok.Access).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/logout", map[string]string{}, tok.Access).Code)

	rec := env.do(http.MethodPost, "/logout", map[string]string{"refresh": tok.Refresh}, tok.Access)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/logout", map[string]string{"refresh": tok.Refresh}, tok.Access).Code)

	rec = env.do(http.MethodPost, "/token/refresh", map[string]string{"refresh": tok.Refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "blacklisted")
}

func TestLogoutAll_Twice(t *testing.T) {
	env := newTestEnv(t)
	aliceID := env.register("alice")
	first := env.login("alice")
	env.login("alice")

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/logout-all", nil, "").Code)
	assert.Equal(t, http.StatusResetContent, env.do(http.MethodPost, "/logout-all", nil, first.Access).Code)

	var blacklisted int64
	require.NoError(t, env.Repo.DB.Model(&models.BlacklistedToken{}).Count(&blacklisted).Error)
	assert.EqualValues(t, 2, blacklisted)

	assert.Equal(t, http.StatusResetContent, env.do(http.MethodPost, "/logout-all", nil, first.Access).Code)
	require.NoError(t, env.Repo.DB.Model(&models.BlacklistedToken{}).Count(&blacklisted).Error)
	assert.EqualValues(t, 2, blacklisted)

	rows, err := env.Repo.OutstandingForUser(context.Background(), aliceID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestAliceScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aliceID := env.register("alice")
	u, err := env.Repo.GetUserByID(ctx, aliceID)
	require.NoError(t, err)
	assert.True(t, u.IsActive)

	msg := env.Mail.last(t)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Contains(t, msg.Body, "?token=")

	session := env.login("alice")
	require.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/logout", map[string]string{"refresh": session.Refresh}, session.Access).Code)

	rec := env.do(http.MethodPost, "/token/refresh", map[string]string{"refresh": session.Refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := env.login("alice")
	require.Equal(t, http.StatusResetContent, env.do(http.MethodPost, "/logout-all", nil, other.Access).Code)

	rows, err := env.Repo.OutstandingForUser(ctx, aliceID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		black, err := env.Repo.IsBlacklisted(ctx, row.ID)
		require.NoError(t, err)
		assert.True(t, black, row.JTI)
	}
}

func TestTokenRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice")
	tok := env.login("alice")

	rec := env.do(http.MethodPost, "/token/refresh", map[string]string{"refresh": tok.Refresh}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[pair](t, rec)
	assert.NotEmpty(t, next.Access)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/users", nil, next.Access).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/token", map[string]string{"username": "alice", "password": "wrong"}, "").Code)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice")
	tok := env.login("alice")

	body := map[string]string{"old_password": "Sup3rSecret!", "password": "N3wSecret!!", "password2": "N3wSecret!!"}
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPut, "/change-password", body, "").Code)

	bad := map[string]string{"old_password": "wrong", "password": "N3wSecret!!", "password2": "N3wSecret!!"}
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/change-password", bad, tok.Access).Code)

	require.Equal(t, http.StatusOK, env.do(http.MethodPut, "/change-password", body, tok.Access).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/token", map[string]string{"username": "alice", "password": "N3wSecret!!"}, "").Code)
}

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	aliceID := env.register("alice")
	require.NoError(t, env.Repo.SetActive(context.Background(), aliceID, false))

	link := env.Mail.last(t).Body
	token := strings.TrimSpace(link[strings.Index(link, "token=")+len("token="):])

	rec := env.do(http.MethodGet, "/email-verify?token="+token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	u, err := env.Repo.GetUserByID(context.Background(), aliceID)
	require.NoError(t, err)
	assert.True(t, u.IsActive)

	rec = env.do(http.MethodGet, "/email-verify?token=broken", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid token")

	old := *env.Issuer
	old.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := old.Access(u)
	require.NoError(t, err)
	rec = env.do(http.MethodGet, "/email-verify?token="+expired.Token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Activation Expired")
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice")

	unknown := env.do(http.MethodPost, "/request-reset-email", map[string]string{"email": "nobody@example.com"}, "")
	known := env.do(http.MethodPost, "/request-reset-email", map[string]string{"email": "alice@example.com"}, "")
	require.Equal(t, http.StatusOK, unknown.Code)
	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, unknown.Body.String(), known.Body.String())

	body := env.Mail.last(t).Body
	rest := strings.TrimSpace(body[strings.Index(body, "/password-reset/")+len("/password-reset/"):])
	parts := strings.Split(rest, "/")
	require.Len(t, parts, 2)
	uid, tok := parts[0], parts[1]

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/password-reset/"+uid+"/"+tok, nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/password-reset/"+uid+"/1-bad", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/password-reset/OTk5/"+tok, nil, "").Code)

	done := map[string]string{"password": "Br4ndNewPass", "token": tok, "uidb64": uid}
	require.Equal(t, http.StatusOK, env.do(http.MethodPatch, "/password-reset-complete", done, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPatch, "/password-reset-complete", done, "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/token", map[string]string{"username": "alice", "password": "Br4ndNewPass"}, "").Code)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice")
	rootID := env.register("root")
	env.makeStaff(rootID)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/users/search?q=al", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/users/search?q=al", nil, env.login("alice").Access).Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/users/search?q=al", nil, env.login("root").Access).Code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
