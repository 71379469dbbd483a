package session

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindtracking-client/internal/domain/kv"
	"mindtracking-client/internal/domain/profile"
	"mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/transport/api"
)

type fakeBackend struct {
	login     *api.LoginResponse
	loginErr  error
	me        []byte
	meErr     error
	updateErr error
	updated   []api.UpdateProfilePayload
}

func (b *fakeBackend) Login(context.Context, string, string) (*api.LoginResponse, error) {
	return b.login, b.loginErr
}

func (b *fakeBackend) Me(context.Context) ([]byte, error) {
	return b.me, b.meErr
}

func (b *fakeBackend) UpdateProfile(_ context.Context, p api.UpdateProfilePayload) ([]byte, error) {
	b.updated = append(b.updated, p)
	return nil, b.updateErr
}

type fakeSync struct {
	refreshes int
	clears    int
}

func (s *fakeSync) LoadFromRemote(context.Context) (string, profile.Result) {
	s.refreshes++
	return "", profile.Result{Outcome: profile.OutcomeUpdated}
}

func (s *fakeSync) Clear(context.Context) profile.Result {
	s.clears++
	return profile.Result{Outcome: profile.OutcomeUpdated}
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newSession(t *testing.T, b *fakeBackend) (*Service, kv.Store, *fakeSync) {
	t.Helper()
	store := kv.NewMemory(kv.Config{})
	sync := &fakeSync{}
	svc, err := New(Dependencies{Backend: b, Store: store, Profile: sync})
	require.NoError(t, err)
	return svc, store, sync
}

func get(t *testing.T, store kv.Store, key string) string {
	t.Helper()
	v, _, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	return v
}

func TestLogin_StoresTokenAndClaims(t *testing.T) {
	token := signed(t, jwt.MapClaims{"nome": "Ana", "email": "ana@claims.io"})
	svc, store, sync := newSession(t, &fakeBackend{login: &api.LoginResponse{Token: token, Nome: "ignored"}})

	_, err := svc.Login(context.Background(), "ana@typed.io", "secret")
	require.NoError(t, err)

	assert.Equal(t, token, get(t, store, KeyToken))
	assert.Equal(t, "Ana", get(t, store, KeyNome))
	assert.Equal(t, "ana@claims.io", get(t, store, KeyEmail))
	assert.Equal(t, 1, sync.refreshes)
}

func TestLogin_OpaqueTokenUsesResponseName(t *testing.T) {
	svc, store, _ := newSession(t, &fakeBackend{login: &api.LoginResponse{Token: "opaque", Nome: "Bia"}})

	_, err := svc.Login(context.Background(), "bia@x.io", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Bia", get(t, store, KeyNome))
	assert.Equal(t, "bia@x.io", get(t, store, KeyEmail))
}

func TestLogin_Failures(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		svc, _, sync := newSession(t, &fakeBackend{login: &api.LoginResponse{Message: "Usuário bloqueado"}})
		_, err := svc.Login(context.Background(), "a@b.c", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Usuário bloqueado")
		assert.True(t, errors.IsKind(err, errors.KindAuth))
		assert.Zero(t, sync.refreshes)
	})

	t.Run("backend message is kept", func(t *testing.T) {
		cause := errors.Wrap(errors.KindNetwork, "api.post.auth_login", "unexpected status",
			&api.StatusError{Method: "POST", Path: "/auth/login", Status: 400, Message: "Senha incorreta"})
		svc, _, _ := newSession(t, &fakeBackend{loginErr: cause})

		_, err := svc.Login(context.Background(), "a@b.c", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Senha incorreta")
		assert.ErrorIs(t, err, cause)
		assert.True(t, errors.IsKind(err, errors.KindAuth), "a rejected login is an auth failure")
	})
}

func TestLogout_RemovesKeysAndClearsProfile(t *testing.T) {
	ctx := context.Background()
	svc, store, sync := newSession(t, &fakeBackend{})
	for _, key := range sessionKeys {
		require.NoError(t, store.Set(ctx, key, "v"))
	}
	require.NoError(t, store.Set(ctx, "unrelated", "keep"))

	require.NoError(t, svc.Logout(ctx))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"unrelated"}, keys)
	assert.Equal(t, 1, sync.clears)
}

// listingStore counts removals and can fail Keys.
type listingStore struct {
	kv.Store
	keysErr error
	removed []string
}

func (s *listingStore) Keys(ctx context.Context) ([]string, error) {
	if s.keysErr != nil {
		return nil, s.keysErr
	}
	return s.Store.Keys(ctx)
}

func (s *listingStore) Remove(ctx context.Context, key string) error {
	s.removed = append(s.removed, key)
	return s.Store.Remove(ctx, key)
}

func TestLogout_SweepsOnlyStoredSessionKeys(t *testing.T) {
	ctx := context.Background()
	store := &listingStore{Store: kv.NewMemory(kv.Config{})}
	sync := &fakeSync{}
	svc, err := New(Dependencies{Backend: &fakeBackend{}, Store: store, Profile: sync})
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, KeyToken, "tok"))
	require.NoError(t, store.Set(ctx, "unrelated", "keep"))

	require.NoError(t, svc.Logout(ctx))
	assert.Equal(t, []string{KeyToken}, store.removed)
	assert.Equal(t, "keep", get(t, store, "unrelated"))
	assert.Equal(t, 1, sync.clears)
}

func TestLogout_FallsBackWhenKeysFails(t *testing.T) {
	ctx := context.Background()
	store := &listingStore{Store: kv.NewMemory(kv.Config{}), keysErr: assert.AnError}
	svc, err := New(Dependencies{Backend: &fakeBackend{}, Store: store, Profile: &fakeSync{}})
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, KeyEmail, "a@b.c"))

	require.NoError(t, svc.Logout(ctx))
	assert.ElementsMatch(t, sessionKeys, store.removed)
	_, ok, err := store.Get(ctx, KeyEmail)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProfileFromServerOrToken(t *testing.T) {
	ctx := context.Background()

	t.Run("server record", func(t *testing.T) {
		svc, store, _ := newSession(t, &fakeBackend{me: []byte(`{"id":12,"nome":"Ana","email":"a@b.c","telefone":null}`)})

		info, err := svc.ProfileFromServerOrToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, UserInfo{ID: "12", Nome: "Ana", Email: "a@b.c"}, info)
		assert.Equal(t, "12", get(t, store, KeyUserID))
		_, ok, _ := store.Get(ctx, KeyTelefone)
		assert.False(t, ok)
	})

	t.Run("token fallback", func(t *testing.T) {
		svc, store, _ := newSession(t, &fakeBackend{meErr: api.ErrUnauthorized})
		token := signed(t, jwt.MapClaims{"sub": "u-9", "name": "Caio", "phone": "119", "gender": "M"})
		require.NoError(t, store.Set(ctx, KeyToken, token))

		info, err := svc.ProfileFromServerOrToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, UserInfo{ID: "u-9", Nome: "Caio", Telefone: "119", Genero: "M"}, info)
		assert.Equal(t, "Caio", get(t, store, KeyNome))
	})

	t.Run("no token", func(t *testing.T) {
		svc, _, _ := newSession(t, &fakeBackend{meErr: api.ErrUnauthorized})
		_, err := svc.ProfileFromServerOrToken(ctx)
		assert.True(t, errors.IsKind(err, errors.KindAuth))
	})

	t.Run("garbage token", func(t *testing.T) {
		svc, store, _ := newSession(t, &fakeBackend{meErr: api.ErrUnauthorized})
		require.NoError(t, store.Set(ctx, KeyToken, "not-a-jwt"))
		_, err := svc.ProfileFromServerOrToken(ctx)
		assert.True(t, errors.IsKind(err, errors.KindAuth))
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	svc, _, sync := newSession(t, b)

	payload := api.UpdateProfilePayload{Nome: "Ana Maria"}
	require.NoError(t, svc.UpdateProfile(ctx, payload))
	assert.Equal(t, []api.UpdateProfilePayload{payload}, b.updated)
	assert.Equal(t, 1, sync.refreshes)

	b.updateErr = errors.New(errors.KindNetwork, "api.put.auth_profile", "offline")
	assert.Error(t, svc.UpdateProfile(ctx, payload))
	assert.Equal(t, 1, sync.refreshes)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Dependencies{})
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}
