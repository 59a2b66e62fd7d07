// Package api exposes the sender and receiver over HTTP with huma.
package api

import (
	"context"
	"encoding/base64"
	"image"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/avsync/internal/api/models"
	"github.com/smazurov/avsync/internal/events"
	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/reader"
	"github.com/smazurov/avsync/internal/streamer"
	"github.com/smazurov/avsync/internal/version"
	"github.com/smazurov/avsync/ui"
)

// SenderControl is the sending side as seen by the API. *streamer.Sender
// implements it.
type SenderControl interface {
	Start(ctx context.Context, url string) error
	Stop()
	Mute()
	Unmute()
	Status() streamer.Status
	LastFrame() image.Image
	AudioDevices() ([]media.Device, error)
	CameraDevices() ([]media.Device, error)
}

// ReceiverControl is the receiving side as seen by the API. *reader.Reader
// implements it.
type ReceiverControl interface {
	Start(ctx context.Context, url string) error
	Stop()
	Mute()
	Unmute()
	Status() reader.Status
	LastFrame() image.Image
}

// DeviceLister enumerates devices of one direction.
type DeviceLister interface {
	AvailableDevices() ([]media.Device, error)
}

// StreamLister lists the paths published to the relay.
type StreamLister interface {
	ListStreams() []string
}

// Options configures the API server. Nil components disable their routes.
type Options struct {
	AuthUsername string
	AuthPassword string

	// Context bounds sessions started through the API.
	Context context.Context

	Sender         SenderControl
	Receiver       ReceiverControl
	AudioOutputs   DeviceLister
	Relay          StreamLister
	EventBus       *events.Bus
	FFmpegOptions  []ffmpeg.OptionType // nil reports the defaults
	MetricsHandler http.Handler
}

// Server is the HTTP control API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	baseCtx    context.Context
	eventBus   *events.Bus
	logger     *slog.Logger
}

// basicAuthMiddleware creates middleware for HTTP basic authentication
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		// Skip auth for operations without security requirements
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		credentials := ""
		if authHeader := ctx.Header("Authorization"); authHeader != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(authHeader, prefix) {
				s.unauthorized(ctx, "Invalid authentication type")
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
			if err != nil {
				s.unauthorized(ctx, "Invalid credentials format", err)
				return
			}
			credentials = string(decoded)
		} else if queryAuth := ctx.Query("auth"); queryAuth != "" {
			// EventSource cannot set headers.
			decoded, err := base64.StdEncoding.DecodeString(queryAuth)
			if err != nil {
				s.unauthorized(ctx, "Invalid credentials format", err)
				return
			}
			credentials = string(decoded)
		}

		if credentials == "" {
			s.unauthorized(ctx, "Authentication required")
			return
		}

		user, pass, ok := strings.Cut(credentials, ":")
		if !ok || user != username || pass != password {
			s.unauthorized(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

func (s *Server) unauthorized(ctx huma.Context, msg string, errs ...error) {
	ctx.SetHeader("WWW-Authenticate", `Basic realm="avsync API"`)
	huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("avsync API", version.String())
	config.Info.Description = "Audio/video sender and receiver control"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	bus := opts.EventBus
	if bus == nil {
		bus = events.New()
	}

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		baseCtx:  baseCtx,
		eventBus: bus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	server.registerRoutes()

	if page, err := ui.Handler(); err == nil {
		mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api") {
				http.NotFound(w, r)
				return
			}
			page.ServeHTTP(w, r)
		})
	} else {
		server.logger.Warn("Monitor page unavailable", "error", err)
	}
	return server
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerDeviceRoutes()
	if s.options.Sender != nil {
		s.registerSenderRoutes()
	}
	if s.options.Receiver != nil {
		s.registerReceiverRoutes()
	}
	if s.options.Relay != nil {
		s.registerRelayRoutes()
	}
	s.registerOptionsRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
