package avatar

import (
	"context"
	"io"
	"log/slog"

	"mindtracking-client/internal/domain/profile"
	"mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/platform/logging"
)

// Uploader stores image bytes and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// PhotoSaver records the URL as the user's photo on the backend.
type PhotoSaver interface {
	SavePhoto(ctx context.Context, url string) error
}

// ProfileUpdater receives the new photo URL.
type ProfileUpdater interface {
	Update(ctx context.Context, url string) profile.Result
}

type Dependencies struct {
	Uploader     Uploader
	Backend      PhotoSaver
	Profile      ProfileUpdater
	MaxDimension int
	Logger       *slog.Logger
}

type Service struct {
	uploader Uploader
	backend  PhotoSaver
	profile  ProfileUpdater
	maxDim   int
	logger   *slog.Logger
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Uploader == nil || deps.Backend == nil || deps.Profile == nil {
		return nil, errors.New(errors.KindConfig, "avatar.new_service", "uploader, backend and profile are required")
	}
	return &Service{
		uploader: deps.Uploader,
		backend:  deps.Backend,
		profile:  deps.Profile,
		maxDim:   deps.MaxDimension,
		logger:   logging.OrDefault(deps.Logger).With(slog.String("component", "avatar")),
	}, nil
}

// Upload prepares r, hosts it, saves it on the backend and updates the profile. It
// returns the hosted URL without the freshness token.
func (s *Service) Upload(ctx context.Context, r io.Reader) (string, error) {
	data, err := Prepare(r, s.maxDim)
	if err != nil {
		return "", err
	}

	url, err := s.uploader.Upload(ctx, data, "photo.jpg")
	if err != nil {
		return "", err
	}
	if err := s.backend.SavePhoto(ctx, url); err != nil {
		return "", errors.Wrap(errors.KindUpload, "avatar.save", "save photo on backend", err)
	}

	res := s.profile.Update(ctx, url)
	s.logger.InfoContext(ctx, "profile photo uploaded",
		slog.String("url", url),
		slog.Int("bytes", len(data)),
		slog.String("outcome", string(res.Outcome)),
	)
	return url, nil
}
