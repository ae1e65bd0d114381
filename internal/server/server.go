package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/activity"
	"github.com/qtosh1/botlyhub/internal/auth"
	"github.com/qtosh1/botlyhub/internal/catalog"
	"github.com/qtosh1/botlyhub/internal/config"
	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/models"
	"github.com/qtosh1/botlyhub/internal/payments"
	"github.com/qtosh1/botlyhub/internal/registry"
	"github.com/qtosh1/botlyhub/internal/ton"
)

// TonService captures the Ton-related operations required by the HTTP layer.
type TonService interface {
	Endpoint() string
	Ping(ctx context.Context) error
	GetAccountBalance(ctx context.Context, address string) (*ton.Balance, error)
}

// Store is the record store surface used directly by handlers. Connection,
// catalog and log records go through their services instead.
type Store interface {
	Ping(ctx context.Context) error

	SyncUser(ctx context.Context, u models.User) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateUserProfile(ctx context.Context, id int64, email, phone *string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserStatus(ctx context.Context, id int64, status models.UserStatus) (*models.User, error)

	ListChannels(ctx context.Context, userID int64) ([]models.Channel, error)
	InsertChannel(ctx context.Context, ch models.Channel) (*models.Channel, error)

	ListAllBots(ctx context.Context) ([]models.Bot, error)

	ListAnnouncements(ctx context.Context, activeOnly bool) ([]models.Announcement, error)
	UpsertAnnouncement(ctx context.Context, a models.Announcement) (*models.Announcement, error)
	DeleteAnnouncement(ctx context.Context, id int64) (bool, error)

	ListNotifications(ctx context.Context, userID int64) ([]models.Notification, error)
	InsertNotification(ctx context.Context, n models.Notification) (*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) (bool, error)

	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, st models.Settings) (*models.Settings, error)
	Stats(ctx context.Context) (models.AdminStats, error)
}

// Options configures the HTTP server instance.
type Options struct {
	Config    config.Config
	Store     Store
	Registry  *registry.Registry
	Activity  *activity.Log
	Catalog   *catalog.Service
	Payments  *payments.Service
	TonClient TonService
	Sessions  *auth.Sessions
	// InitData enables Telegram init-data authentication. When nil, callers
	// identify themselves with X-User-Id or ?user_id=.
	InitData *auth.InitDataValidator
	Logger   logrus.FieldLogger
}

// Server wires Echo with the application dependencies.
type Server struct {
	opts Options
	app  *echo.Echo
	log  *logrus.Entry
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

// New creates a new Server instance.
func New(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
	e.Use(middleware.Recover())

	s := &Server{
		opts: opts,
		app:  e,
		log:  logger.Component(opts.Logger, "http"),
	}
	e.Use(s.requestLogger)
	s.registerRoutes()
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Start launches the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.Config.ShutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.log.WithField("addr", s.opts.Config.Addr()).Info("http server listening")
	err := s.app.Start(s.opts.Config.Addr())
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app == nil {
		return nil
	}
	return s.app.Shutdown(ctx)
}
