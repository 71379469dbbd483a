package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mindtracking-client/internal/domain/lifecycle"
	"mindtracking-client/internal/domain/profile"
	"mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/platform/logging"
	"mindtracking-client/internal/transport/api"
)

const (
	writeTimeout   = 10 * time.Second
	maxUploadBytes = 10 << 20
)

// ProfileService is the synchronizer surface exposed over HTTP.
type ProfileService interface {
	Current() profile.Snapshot
	LoadFromRemote(ctx context.Context) (string, profile.Result)
	Update(ctx context.Context, url string) profile.Result
	Clear(ctx context.Context) profile.Result
}

// AppStatePublisher forwards shell lifecycle transitions.
type AppStatePublisher interface {
	Publish(s lifecycle.State) error
}

// SnapshotStream feeds the websocket endpoint.
type SnapshotStream interface {
	Subscribe(ctx context.Context) (<-chan profile.Snapshot, error)
}

// SessionService handles sign-in and sign-out.
type SessionService interface {
	Login(ctx context.Context, email, senha string) (*api.LoginResponse, error)
	Logout(ctx context.Context) error
}

// AvatarService uploads a new profile photo.
type AvatarService interface {
	Upload(ctx context.Context, r io.Reader) (string, error)
}

// HandlerDeps wires a ProfileHandler. Only Profile is required; routes for missing
// collaborators are not registered.
type HandlerDeps struct {
	Profile   ProfileService
	Lifecycle AppStatePublisher
	Stream    SnapshotStream
	Session   SessionService
	Avatar    AvatarService
	Logger    *slog.Logger
	// CheckOrigin guards websocket upgrades. Nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

type ProfileHandler struct {
	deps     HandlerDeps
	upgrader *websocket.Upgrader
	logger   *slog.Logger
}

func NewProfileHandler(deps HandlerDeps) (*ProfileHandler, error) {
	if deps.Profile == nil {
		return nil, errors.New(errors.KindConfig, "http.profile_handler", "profile service is required")
	}
	upgrader := &websocket.Upgrader{CheckOrigin: deps.CheckOrigin}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &ProfileHandler{
		deps:     deps,
		upgrader: upgrader,
		logger:   logging.OrDefault(deps.Logger).With(slog.String("component", "http.profile")),
	}, nil
}

func (h *ProfileHandler) RegisterRoutes(router *Router) {
	router.API.GET("/profile", h.GetProfile)
	router.API.POST("/profile/refresh", h.Refresh)
	router.API.PUT("/profile/photo", h.UpdatePhoto)
	router.API.DELETE("/profile", h.Clear)

	if h.deps.Avatar != nil {
		router.API.POST("/profile/photo", h.UploadPhoto)
	}
	if h.deps.Lifecycle != nil {
		router.API.POST("/app-state", h.AppState)
	}
	if h.deps.Stream != nil {
		router.API.GET("/profile/stream", h.Stream)
	}
	if h.deps.Session != nil {
		router.API.POST("/session/login", h.Login)
		router.API.POST("/session/logout", h.Logout)
	}
}

// SyncResponse reports a synchronizer call. Error is set when the snapshot was kept
// because the operation failed.
type SyncResponse struct {
	Photo   string `json:"photo"`
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func (h *ProfileHandler) syncResponse(res profile.Result) SyncResponse {
	snap := h.deps.Profile.Current()
	out := SyncResponse{Photo: snap.Photo, Name: snap.Name, Outcome: string(res.Outcome)}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.deps.Profile.Current(), "")
}

func (h *ProfileHandler) Refresh(c *gin.Context) {
	_, res := h.deps.Profile.LoadFromRemote(c.Request.Context())
	RespondSuccess(c, http.StatusOK, h.syncResponse(res), "")
}

type UpdatePhotoRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *ProfileHandler) UpdatePhoto(c *gin.Context) {
	var req UpdatePhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "url is required", nil)
		return
	}
	res := h.deps.Profile.Update(c.Request.Context(), req.URL)
	RespondSuccess(c, http.StatusOK, h.syncResponse(res), "")
}

func (h *ProfileHandler) UploadPhoto(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()

	url, err := h.deps.Avatar.Upload(c.Request.Context(), io.LimitReader(file, maxUploadBytes))
	if err != nil {
		_ = c.Error(err)
		RespondError(c, statusFor(err), err.Error(), nil)
		return
	}
	RespondSuccess(c, http.StatusCreated, gin.H{"url": url, "profile": h.deps.Profile.Current()}, "photo updated")
}

func (h *ProfileHandler) Clear(c *gin.Context) {
	res := h.deps.Profile.Clear(c.Request.Context())
	RespondSuccess(c, http.StatusOK, h.syncResponse(res), "")
}

type AppStateRequest struct {
	State string `json:"state" binding:"required"`
}

func (h *ProfileHandler) AppState(c *gin.Context) {
	var req AppStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "state is required", nil)
		return
	}
	state, err := lifecycle.ParseState(req.State)
	if err != nil {
		RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.deps.Lifecycle.Publish(state); err != nil {
		_ = c.Error(err)
		RespondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	RespondSuccess(c, http.StatusAccepted, gin.H{"state": state}, "")
}

type LoginRequest struct {
	Email string `json:"email" binding:"required"`
	Senha string `json:"senha" binding:"required"`
}

func (h *ProfileHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "email and senha are required", nil)
		return
	}
	if _, err := h.deps.Session.Login(c.Request.Context(), req.Email, req.Senha); err != nil {
		_ = c.Error(err)
		RespondError(c, statusFor(err), err.Error(), nil)
		return
	}
	RespondSuccess(c, http.StatusOK, h.deps.Profile.Current(), "signed in")
}

func (h *ProfileHandler) Logout(c *gin.Context) {
	if err := h.deps.Session.Logout(c.Request.Context()); err != nil {
		_ = c.Error(err)
		RespondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "signed out")
}

// Stream upgrades to a websocket, sends the current snapshot and then every change.
func (h *ProfileHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	snapshots, err := h.deps.Stream.Subscribe(ctx)
	if err != nil {
		h.logger.Warn("snapshot subscription failed", slog.Any("error", err))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stream unavailable"))
		return
	}

	// The shell never sends anything; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeSnapshot(conn, h.deps.Profile.Current()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := writeSnapshot(conn, snap); err != nil {
				h.logger.Debug("websocket write failed", slog.Any("error", err))
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap profile.Snapshot) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(snap)
}

func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindAuth:
		return http.StatusUnauthorized
	case errors.KindUpload, errors.KindShape:
		return http.StatusUnprocessableEntity
	case errors.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
