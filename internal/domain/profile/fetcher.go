package profile

import (
	"context"
)

// Fetcher returns the authoritative profile.
type Fetcher interface {
	FetchProfile(ctx context.Context) (Profile, error)
}

// ProfileSource returns the raw authenticated profile body. api.Client implements it.
type ProfileSource interface {
	GetProfile(ctx context.Context) ([]byte, error)
}

// HTTPFetcher runs a ProfileSource body through ParseProfile.
type HTTPFetcher struct {
	source ProfileSource
}

func NewHTTPFetcher(source ProfileSource) *HTTPFetcher {
	return &HTTPFetcher{source: source}
}

func (f *HTTPFetcher) FetchProfile(ctx context.Context) (Profile, error) {
	body, err := f.source.GetProfile(ctx)
	if err != nil {
		return Profile{}, err
	}
	return ParseProfile(body)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (Profile, error)

func (f FetcherFunc) FetchProfile(ctx context.Context) (Profile, error) {
	return f(ctx)
}
