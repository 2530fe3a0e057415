package receipt

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// userHeader carries the id of the user a request acts for
const userHeader = "X-User-ID"

// Server handles HTTP requests for tickets and the catalog
type Server struct {
	service   *Service
	basicAuth BasicAuth
	limiter   *RateLimiter
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux. A nil limiter disables
// rate limiting.
func NewServer(service *Service, basicAuth BasicAuth, limiter *RateLimiter) *Server {
	return NewServerWithMux(service, basicAuth, limiter, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, limiter *RateLimiter, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		limiter:   limiter,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireUser middleware checks credentials and the rate limit, and rejects
// requests that do not name a user
func (s *Server) requireUser(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Grocery Tracker"`)
			writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if s.limiter != nil && !s.limiter.Allow(r) {
			writeJSONError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		userID := strings.TrimSpace(r.Header.Get(userHeader))
		if userID == "" {
			writeJSONError(w, userHeader+" header required", http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Tickets
	s.mux.HandleFunc("POST /api/tickets/text", s.requireUser(s.handleCreateTicketFromText))
	s.mux.HandleFunc("POST /api/tickets/{id}/confirm", s.requireUser(s.handleConfirmTicket))
	s.mux.HandleFunc("PATCH /api/tickets/{id}/items/{itemID}", s.requireUser(s.handleUpdateItem))
	s.mux.HandleFunc("POST /api/tickets/{id}/items/{itemID}/match", s.requireUser(s.handleAcceptSuggestion))
	s.mux.HandleFunc("POST /api/tickets/{id}/items/{itemID}/ignore", s.requireUser(s.handleIgnoreItem))
	s.mux.HandleFunc("POST /api/tickets/{id}/items/{itemID}/restore", s.requireUser(s.handleRestoreItem))
	s.mux.HandleFunc("GET /api/tickets/{id}/image", s.requireUser(s.handleGetTicketImage))
	s.mux.HandleFunc("GET /api/tickets/{id}", s.requireUser(s.handleGetTicket))
	s.mux.HandleFunc("DELETE /api/tickets/{id}", s.requireUser(s.handleDeleteTicket))
	s.mux.HandleFunc("GET /api/tickets", s.requireUser(s.handleListTickets))
	s.mux.HandleFunc("POST /api/tickets", s.requireUser(s.handleScanTicket))

	// Parsing
	s.mux.HandleFunc("POST /api/parse", s.requireUser(s.handlePreviewParse))
	s.mux.HandleFunc("GET /api/parsers", s.requireUser(s.handleListParsers))

	// Catalog
	s.mux.HandleFunc("DELETE /api/stores/{id}", s.requireUser(s.handleDeleteStore))
	s.mux.HandleFunc("GET /api/stores", s.requireUser(s.handleListStores))
	s.mux.HandleFunc("POST /api/stores", s.requireUser(s.handleCreateStore))
	s.mux.HandleFunc("GET /api/products/search", s.requireUser(s.handleSearchProducts))
	s.mux.HandleFunc("DELETE /api/products/{id}", s.requireUser(s.handleDeleteProduct))
	s.mux.HandleFunc("GET /api/products", s.requireUser(s.handleListProducts))
	s.mux.HandleFunc("POST /api/products", s.requireUser(s.handleCreateProduct))
	s.mux.HandleFunc("GET /api/purchases", s.requireUser(s.handleListPurchases))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s)
}

// ServeHTTP implements http.Handler, wrapping the mux with CORS handling so
// preflight requests are answered for every route
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux.ServeHTTP)(w, r)
}
