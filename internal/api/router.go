package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/uticket/backend/internal/auth"
	"github.com/uticket/backend/internal/middleware"
	"go.uber.org/zap"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Auth          *AuthHandler
	GoogleOAuth   *GoogleOAuthHandler
	Health        *HealthHandler
	Listings      *ListingHandler
	Wishlist      *WishlistHandler
	Notifications *NotificationHandler
	Purchases     *PurchaseHandler
	Profile       *ProfileHandler
}

// Router holds all handlers and creates the chi router
type Router struct {
	handlers       Handlers
	jwtManager     *auth.JWTManager
	rateLimit      func(http.Handler) http.Handler
	allowedOrigins []string
	uploadsDir     string
	logger         *zap.Logger
}

// NewRouter creates a router. rateLimit guards the unauthenticated auth
// endpoints; uploadsDir, when set, is served under /uploads.
func NewRouter(handlers Handlers, jwtManager *auth.JWTManager, rateLimit func(http.Handler) http.Handler, allowedOrigins []string, uploadsDir string, logger *zap.Logger) *Router {
	if rateLimit == nil {
		rateLimit = func(next http.Handler) http.Handler { return next }
	}
	return &Router{
		handlers:       handlers,
		jwtManager:     jwtManager,
		rateLimit:      rateLimit,
		allowedOrigins: allowedOrigins,
		uploadsDir:     uploadsDir,
		logger:         logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	h := rt.handlers
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware(rt.allowedOrigins))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/live", h.Health.Live)
	})

	if rt.uploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(rt.uploadsDir))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(rt.rateLimit)
			r.Post("/signup", h.Auth.SignUp)
			r.With(middleware.OptionalAuthMiddleware(rt.jwtManager)).Post("/signin", h.Auth.SignIn)
			r.Post("/refresh", h.Auth.Refresh)
			r.Post("/signout", h.Auth.SignOut)
			r.Post("/google", h.Auth.GoogleLogin)
			if h.GoogleOAuth != nil {
				r.Get("/google/login", h.GoogleOAuth.GoogleOAuthLogin)
				r.Get("/google/callback", h.GoogleOAuth.GoogleOAuthCallback)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(rt.jwtManager))

			r.Get("/me", h.Auth.Me)
			r.Post("/auth/signout-all", h.Auth.SignOutAll)

			r.Route("/listings", func(r chi.Router) {
				r.Get("/", h.Listings.List)
				r.Post("/", h.Listings.Create)
				r.Get("/mine", h.Listings.Mine)
				r.Get("/{id}", h.Listings.Get)
				r.Post("/{id}/sold", h.Listings.MarkSold)
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", h.Wishlist.List)
				r.Put("/{listingID}", h.Wishlist.Add)
				r.Delete("/{listingID}", h.Wishlist.Remove)
				r.Post("/{listingID}/toggle", h.Wishlist.Toggle)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/stream", h.Notifications.Stream)
				r.Post("/{id}/read", h.Notifications.MarkRead)
				r.Put("/fcm-token", h.Notifications.UpdateFCMToken)
			})
			r.Get("/settings/notifications", h.Notifications.GetPreferences)
			r.Put("/settings/notifications", h.Notifications.SetPreferences)

			r.Post("/purchases/{listingID}", h.Purchases.Initiate)

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", h.Profile.Get)
				r.Put("/", h.Profile.Save)
				r.Put("/photo", h.Profile.UploadPhoto)
				r.Delete("/photo", h.Profile.RemovePhoto)
			})
		})
	})

	return r
}
