package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	apperrors "chatrelay/internal/errors"
	"chatrelay/internal/middleware"
	"chatrelay/internal/models"
	"chatrelay/internal/service"
	"chatrelay/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Presence reports which users currently hold a live connection.
type Presence interface {
	Online() []string
}

// Pinger checks that the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the HTTP surface serves.
type Dependencies struct {
	Users         service.UserService
	Conversations service.ConversationService
	Messages      service.MessageService
	Presence      Presence
	DB            Pinger
	WebSocket     http.Handler
}

type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *logrus.Logger
	cfg     *models.Config
	deps    Dependencies
	verbose bool
	server  *http.Server
}

func NewServer(cfg *models.Config, deps Dependencies, logger *logrus.Logger, verbose bool) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		cfg:     cfg,
		deps:    deps,
		verbose: verbose,
	}

	s.setupRoutes()
	s.handler = s.wrap(s.router)

	// No read or write timeouts: WebSocket connections are long-lived and
	// carry their own deadlines.
	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           s.handler,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.cfg.Server.TrustProxy))
	if s.verbose {
		s.router.Use(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig()))
		s.router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(service.WithVerbose(r.Context(), true)))
			})
		})
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	if s.deps.WebSocket != nil {
		s.router.Handle("/ws", s.deps.WebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/users/register", s.handleRegister()).Methods(http.MethodPost)
	api.HandleFunc("/users/login", s.handleLogin()).Methods(http.MethodPost)
	api.HandleFunc("/users/search/{email}", s.handleSearchUsers()).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}", s.handleListUsers()).Methods(http.MethodGet)

	api.HandleFunc("/conversations", s.handleOpenConversation()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{userId}", s.handleListConversations()).Methods(http.MethodGet)

	api.HandleFunc("/message", s.handleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/message/{conversationId}", s.handleHistory()).Methods(http.MethodGet)

	api.HandleFunc("/presence", s.handlePresence()).Methods(http.MethodGet)

	// Paths older web clients still call.
	api.HandleFunc("/register", s.handleRegister()).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handleLogin()).Methods(http.MethodPost)
	api.HandleFunc("/conversation", s.handleOpenConversation()).Methods(http.MethodPost)
	api.HandleFunc("/search/{email}", s.handleSearchUsers()).Methods(http.MethodGet)
}

// wrap applies the middleware that must also see unmatched routes and CORS
// preflights.
func (s *Server) wrap(h http.Handler) http.Handler {
	origins := append([]string{s.cfg.Server.ClientURL}, s.cfg.Server.AllowedOrigins...)
	h = middleware.MaxBodyBytes(s.cfg.Server.MaxRequestBodyBytes)(h)
	h = middleware.CORS(origins...)(h)
	return middleware.Recover(s.logger)(h)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called. A server shut down before Start
// returns nil immediately.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.DB != nil {
			if err := s.deps.DB.Ping(r.Context()); err != nil {
				s.logger.WithError(err).Warn("Health check failed: database unreachable")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":   "unavailable",
					"database": "unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.RegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err, "Invalid registration request")
			return
		}

		result, err := s.deps.Users.Register(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err, "Registration failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err, "Invalid login request")
			return
		}

		result, err := s.deps.Users.Login(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err, "Login failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleListUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contacts, err := s.deps.Users.ListContacts(r.Context(), mux.Vars(r)["userId"])
		if err != nil {
			s.writeError(w, r, err, "Failed to list users")
			return
		}
		if contacts == nil {
			contacts = []service.ContactEntry{}
		}
		writeJSON(w, http.StatusOK, contacts)
	}
}

func (s *Server) handleSearchUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		term := mux.Vars(r)["email"]
		users, err := s.deps.Users.Search(r.Context(), term, r.URL.Query().Get("userId"))
		if err != nil {
			s.writeError(w, r, err, "Failed to search users")
			return
		}
		if users == nil {
			users = []service.UserView{}
		}
		writeJSON(w, http.StatusOK, users)
	}
}

type openConversationRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type openConversationResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

func (s *Server) handleOpenConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openConversationRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err, "Invalid conversation request")
			return
		}

		conv, created, err := s.deps.Conversations.Open(r.Context(), req.SenderID, req.ReceiverID)
		if err != nil {
			s.writeError(w, r, err, "Failed to open conversation")
			return
		}

		msg := "Conversation created successfully"
		if !created {
			msg = "Conversation already exists"
		}
		writeJSON(w, http.StatusOK, openConversationResponse{Message: msg, ConversationID: conv.ID})
	}
}

func (s *Server) handleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.deps.Conversations.List(r.Context(), mux.Vars(r)["userId"])
		if err != nil {
			s.writeError(w, r, err, "Failed to list conversations")
			return
		}
		if entries == nil {
			entries = []service.ConversationEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

type sendMessageResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.SendRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err, "Invalid message request")
			return
		}

		msg, err := s.deps.Messages.Send(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err, "Failed to send message")
			return
		}
		writeJSON(w, http.StatusOK, sendMessageResponse{
			Message:        "Message sent successfully",
			ConversationID: msg.ConversationID,
		})
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		history, err := s.deps.Messages.History(r.Context(), mux.Vars(r)["conversationId"], q.Get("senderId"), q.Get("receiverId"))
		if err != nil {
			s.writeError(w, r, err, "Failed to fetch messages")
			return
		}
		if history == nil {
			history = []service.HistoryEntry{}
		}
		writeJSON(w, http.StatusOK, history)
	}
}

func (s *Server) handlePresence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		online := []string{}
		if s.deps.Presence != nil {
			if users := s.deps.Presence.Online(); users != nil {
				online = users
			}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"online": online})
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewValidationError("body", "", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to decode request body").
			WithUserMessage("Invalid request body")
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	requestID := tracing.GetRequestID(r.Context())
	apperrors.Log(s.logger, err, message, logrus.Fields{
		service.LogFieldRequestID: requestID,
		service.LogFieldURL:       r.URL.Path,
	})
	writeJSON(w, apperrors.HTTPStatusCode(err), apperrors.ToHTTPResponse(err, requestID))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
