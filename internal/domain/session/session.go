// Package session covers sign-in, sign-out and the user record kept on the device.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v5"

	"mindtracking-client/internal/domain/kv"
	"mindtracking-client/internal/domain/profile"
	"mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/platform/logging"
	"mindtracking-client/internal/transport/api"
)

// Keys kept in the kv store for the signed-in user.
const (
	KeyToken    = api.TokenKey
	KeyEmail    = "email"
	KeyNome     = "nome"
	KeyUserID   = "usuario_id"
	KeyTelefone = "telefone"
	KeyGenero   = "genero"
)

var sessionKeys = []string{KeyToken, KeyEmail, KeyUserID, KeyNome, KeyTelefone, KeyGenero}

// Backend is the slice of api.Client the session needs.
type Backend interface {
	Login(ctx context.Context, email, senha string) (*api.LoginResponse, error)
	Me(ctx context.Context) ([]byte, error)
	UpdateProfile(ctx context.Context, payload api.UpdateProfilePayload) ([]byte, error)
}

// Synchronizer is the profile side of a session change.
type Synchronizer interface {
	LoadFromRemote(ctx context.Context) (string, profile.Result)
	Clear(ctx context.Context) profile.Result
}

// UserInfo is the locally persisted user record.
type UserInfo struct {
	ID       string `json:"id"`
	Nome     string `json:"nome"`
	Email    string `json:"email"`
	Telefone string `json:"telefone"`
	Genero   string `json:"genero"`
}

type Dependencies struct {
	Backend Backend
	Store   kv.Store
	Profile Synchronizer
	Logger  *slog.Logger
}

type Service struct {
	backend Backend
	store   kv.Store
	profile Synchronizer
	logger  *slog.Logger
}

func New(deps Dependencies) (*Service, error) {
	if deps.Backend == nil || deps.Store == nil || deps.Profile == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "backend, store and profile are required")
	}
	return &Service{
		backend: deps.Backend,
		store:   deps.Store,
		profile: deps.Profile,
		logger:  logging.OrDefault(deps.Logger).With(slog.String("component", "session")),
	}, nil
}

// Login signs in and stores the token, email and name. The profile is then refreshed
// so every consumer shows the new user.
func (s *Service) Login(ctx context.Context, email, senha string) (*api.LoginResponse, error) {
	resp, err := s.backend.Login(ctx, email, senha)
	if err != nil {
		return nil, authError("session.login", loginMessage(err), err)
	}
	if resp.Token == "" {
		msg := resp.Message
		if msg == "" {
			msg = "token not returned by server"
		}
		return nil, errors.New(errors.KindAuth, "session.login", msg)
	}

	s.put(ctx, KeyToken, resp.Token)
	s.put(ctx, KeyEmail, email)

	if claims, err := Claims(resp.Token); err == nil {
		if nome := claimString(claims, "nome"); nome != "" {
			s.put(ctx, KeyNome, nome)
		}
		if mail := claimString(claims, "email"); mail != "" {
			s.put(ctx, KeyEmail, mail)
		}
	} else if resp.Nome != "" {
		s.put(ctx, KeyNome, resp.Nome)
	}

	s.profile.LoadFromRemote(ctx)
	s.logger.InfoContext(ctx, "signed in", slog.String("email", email))
	return resp, nil
}

// Logout removes the stored session keys and clears the profile snapshot. When the
// store cannot list its keys every session key is removed blindly.
func (s *Service) Logout(ctx context.Context) error {
	stored, err := s.store.Keys(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "list kv keys failed", slog.Any("error", err))
		stored = sessionKeys
	}

	var first error
	for _, key := range stored {
		if !isSessionKey(key) {
			continue
		}
		if err := s.store.Remove(ctx, key); err != nil && first == nil {
			first = errors.Wrap(errors.KindStorage, "session.logout", "remove "+key, err)
		}
	}
	s.profile.Clear(ctx)
	s.logger.InfoContext(ctx, "signed out")
	return first
}

// ProfileFromServerOrToken asks /auth/me for the user record and falls back to the
// claims of the stored token. Non-empty fields are persisted.
func (s *Service) ProfileFromServerOrToken(ctx context.Context) (UserInfo, error) {
	body, err := s.backend.Me(ctx)
	if err == nil {
		var record map[string]any
		if derr := sonic.Unmarshal(body, &record); derr == nil && record != nil {
			info := UserInfo{
				ID:       pick(record, "id"),
				Nome:     pick(record, "nome"),
				Email:    pick(record, "email"),
				Telefone: pick(record, "telefone"),
				Genero:   pick(record, "genero"),
			}
			s.persist(ctx, info)
			return info, nil
		}
	} else {
		s.logger.DebugContext(ctx, "auth/me failed, using token claims", slog.Any("error", err))
	}

	token, ok, gerr := s.store.Get(ctx, KeyToken)
	if gerr != nil {
		return UserInfo{}, errors.Wrap(errors.KindStorage, "session.profile", "read token", gerr)
	}
	if !ok || token == "" {
		return UserInfo{}, errors.New(errors.KindAuth, "session.profile", "token not found")
	}

	claims, cerr := Claims(token)
	if cerr != nil {
		return UserInfo{}, cerr
	}
	info := UserInfo{
		ID:       claimString(claims, "id", "sub", "usuario_id"),
		Nome:     claimString(claims, "nome", "name"),
		Email:    claimString(claims, "email"),
		Telefone: claimString(claims, "telefone", "phone"),
		Genero:   claimString(claims, "genero", "gender"),
	}
	s.persist(ctx, info)
	return info, nil
}

// UpdateProfile saves the user's details, then refreshes the profile so the new name
// reaches every consumer.
func (s *Service) UpdateProfile(ctx context.Context, payload api.UpdateProfilePayload) error {
	if _, err := s.backend.UpdateProfile(ctx, payload); err != nil {
		return authError("session.update_profile", api.Message(err), err)
	}
	s.profile.LoadFromRemote(ctx)
	return nil
}

// Claims decodes the token payload without verifying its signature. The client has no
// key to verify with; the backend does that on every request.
func Claims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(errors.KindAuth, "session.claims", "decode token", err)
	}
	return claims, nil
}

func (s *Service) persist(ctx context.Context, info UserInfo) {
	for key, value := range map[string]string{
		KeyUserID:   info.ID,
		KeyNome:     info.Nome,
		KeyEmail:    info.Email,
		KeyTelefone: info.Telefone,
		KeyGenero:   info.Genero,
	} {
		if value != "" {
			s.put(ctx, key, value)
		}
	}
}

func isSessionKey(key string) bool {
	for _, k := range sessionKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (s *Service) put(ctx context.Context, key, value string) {
	if err := s.store.Set(ctx, key, value); err != nil {
		s.logger.WarnContext(ctx, "session write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func authError(op, msg string, cause error) error {
	if msg == "" {
		msg = "request failed"
	}
	kind := errors.KindOf(cause)
	var status *api.StatusError
	if kind == errors.KindUnknown || (errors.As(cause, &status) && status.Status < 500) {
		kind = errors.KindAuth
	}
	return &errors.Error{Kind: kind, Op: op, Message: msg, Cause: cause}
}

func loginMessage(err error) string {
	if msg := api.Message(err); msg != "" {
		return msg
	}
	return "login failed"
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	return pick(claims, keys...)
}

func pick(record map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := record[key].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}
