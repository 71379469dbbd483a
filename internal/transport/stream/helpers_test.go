package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mindtracking-client/internal/domain/kv"
	"mindtracking-client/internal/domain/profile"
)

func newService(t *testing.T) *profile.Service {
	t.Helper()
	svc, err := profile.NewService(profile.Config{}, profile.Dependencies{
		Store: kv.NewMemory(kv.Config{}),
		Fetcher: profile.FetcherFunc(func(context.Context) (profile.Profile, error) {
			return profile.Profile{}, nil
		}),
	})
	require.NoError(t, err)
	return svc
}
