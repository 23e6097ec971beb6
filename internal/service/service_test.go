package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/car_rental/internal/access"
	"github.com/Skotchmaster/car_rental/internal/db"
	"github.com/Skotchmaster/car_rental/internal/events"
	"github.com/Skotchmaster/car_rental/internal/hash"
	"github.com/Skotchmaster/car_rental/internal/mail"
	"github.com/Skotchmaster/car_rental/internal/models"
	"github.com/Skotchmaster/car_rental/internal/repo"
	"github.com/Skotchmaster/car_rental/internal/resettoken"
	"github.com/Skotchmaster/car_rental/internal/search"
	"github.com/Skotchmaster/car_rental/internal/tokens"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, m mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakeEvents struct {
	mu   sync.Mutex
	got  []events.UserEvent
	fail bool
}

func (f *fakeEvents) PublishEvent(_ context.Context, _, _ string, ev any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.got = append(f.got, ev.(events.UserEvent))
	return nil
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.got))
	for _, e := range f.got {
		out = append(out, e.Type)
	}
	return out
}

type fakeIndex struct {
	docs map[uint]search.UserDoc
}

func (f *fakeIndex) IndexUser(_ context.Context, u *models.User) error {
	if f.docs == nil {
		f.docs = map[uint]search.UserDoc{}
	}
	f.docs[u.ID] = search.DocFromUser(u)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, q string, _, _ int) (search.Results, error) {
	out := search.Results{Users: []search.UserDoc{}}
	for _, d := range f.docs {
		if strings.Contains(d.Username, q) {
			out.Users = append(out.Users, d)
		}
	}
	out.Total = int64(len(out.Users))
	return out, nil
}

type testEnv struct {
	Repo    *repo.GormRepo
	Issuer  *tokens.Issuer
	Account *AccountService
	Auth    *AuthService
	Mail    *fakeMailer
	Events  *fakeEvents
	Index   *fakeIndex
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	hash.Cost = bcrypt.MinCost

	gdb, err := db.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	r := repo.New(gdb)
	iss := &tokens.Issuer{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}
	m := &fakeMailer{}
	ev := &fakeEvents{}
	idx := &fakeIndex{}

	return &testEnv{
		Repo:   r,
		Issuer: iss,
		Mail:   m,
		Events: ev,
		Index:  idx,
		Account: &AccountService{
			Repo:     r,
			Tokens:   iss,
			Resets:   &resettoken.Generator{Secret: []byte("access-secret"), Timeout: time.Hour},
			Mailer:   m,
			Events:   ev,
			Index:    idx,
			Searcher: idx,
			Site:     Site{Scheme: "https", Domain: "cars.test"},
		},
		Auth: &AuthService{Repo: r, Tokens: iss, Events: ev},
	}
}

func (env *testEnv) register(t *testing.T, username string) *models.User {
	t.Helper()
	res, err := env.Account.Register(context.Background(), access.Anonymous(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "Sup3rSecret!",
	})
	require.NoError(t, err)
	return res.User
}

func (env *testEnv) makeStaff(t *testing.T, u *models.User) access.Principal {
	t.Helper()
	require.NoError(t, env.Repo.DB.Model(&models.User{}).Where("id = ?", u.ID).Update("is_staff", true).Error)
	u.IsStaff = true
	return access.User(u.ID, u.Username, true)
}

func principalOf(u *models.User) access.Principal {
	return access.User(u.ID, u.Username, u.IsStaff)
}
