package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
)

// DefaultUserHeader carries the caller identity set by the trusted front proxy
const DefaultUserHeader = "X-Utmcraft-User"

type Server struct {
	router      *chi.Mux
	uc          *usecase.UseCases
	userHeader  string
	maxBodySize int64
}

type Options func(*Server)

// WithUserHeader changes the header the caller identity is read from
func WithUserHeader(name string) Options {
	return func(s *Server) {
		s.userHeader = name
	}
}

// WithMaxBodySize limits request bodies in bytes
func WithMaxBodySize(size int64) Options {
	return func(s *Server) {
		s.maxBodySize = size
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:      r,
		uc:          uc,
		userHeader:  DefaultUserHeader,
		maxBodySize: 1 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(userMiddleware(s.userHeader))
		r.Use(bodyLimit(s.maxBodySize))

		r.Post("/resolve", s.resolve)
		r.Get("/history", s.history)
		r.Get("/submissions/{hashcode}", s.parse)

		r.Route("/fields", func(r chi.Router) {
			r.Get("/", s.listFields)
			r.Post("/", s.createField)
			r.Post("/validate", s.validateField)
			r.Post("/rename", s.renameField)
			r.Get("/{fieldID}", s.getField)
			r.Put("/{fieldID}", s.updateField)
			r.Delete("/{fieldID}", s.deleteField)
		})

		r.Route("/forms", func(r chi.Router) {
			r.Get("/", s.listForms)
			r.Post("/", s.createForm)
			r.Post("/validate", s.validateForm)
			r.Get("/{formID}", s.getForm)
			r.Put("/{formID}", s.updateForm)
			r.Delete("/{formID}", s.deleteForm)
			r.Get("/{formID}/layout", s.layout)
			r.Post("/{formID}/evaluate", s.evaluate)
			r.Post("/{formID}/grants", s.grantAccess)
			r.Delete("/{formID}/grants/{userID}", s.revokeAccess)
		})

		r.Route("/dependencies", func(r chi.Router) {
			r.Get("/", s.listDependencies)
			r.Post("/", s.createDependency)
			r.Post("/validate", s.validateDependency)
			r.Get("/{dependencyID}", s.getDependency)
			r.Put("/{dependencyID}", s.updateDependency)
			r.Delete("/{dependencyID}", s.deleteDependency)
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
