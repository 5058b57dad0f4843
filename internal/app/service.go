package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"hearth/api/internal/auth"
	"hearth/api/internal/authpw"
	"hearth/api/internal/config"
	"hearth/api/internal/export"
	"hearth/api/internal/realtime"
	"hearth/api/internal/search"
	"hearth/api/internal/store"
	"hearth/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// Store is the persistence the service needs. *store.PostgresStore satisfies it.
type Store interface {
	Ping(context.Context) error

	CreateUser(context.Context, store.User) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	CountUsers(context.Context) (int, error)

	CreateHouseholdLink(context.Context, string, string) (store.HouseholdLink, error)
	GetHouseholdLink(context.Context, string) (store.HouseholdLink, error)
	ListActiveHouseholds(context.Context, string) ([]store.HouseholdLink, error)

	CreateThread(context.Context, store.Thread) (store.Thread, error)
	GetThread(context.Context, string) (store.Thread, error)
	ListThreadsForUser(context.Context, string) ([]store.ThreadSummary, error)

	InsertMessage(context.Context, store.NewMessage) (store.Message, error)
	ListMessagesByThread(context.Context, string, bool) ([]store.Message, error)
	GetMessages(context.Context, []string) ([]store.Message, error)
	SoftDeleteMessages(context.Context, []string, string) ([]store.Message, error)
	RestoreMessages(context.Context, []string, string) ([]store.Message, error)
	HideMessages(context.Context, []string, string) ([]store.Message, error)
	UnhideMessages(context.Context, []string, string) ([]store.Message, error)
	ToggleChecked(context.Context, string, string) (store.Message, error)
	TogglePinned(context.Context, string, string) (store.Message, error)
	SetItemQuantity(context.Context, string, decimal.NullDecimal, string) (store.Message, error)
	SetItemURL(context.Context, string, *string, string) (store.Message, error)
	UpdateContent(context.Context, string, string, string) (store.Message, error)
	ArchiveMessages(context.Context, []string, string, string) ([]store.Message, error)
	UnarchiveMessages(context.Context, []string, string) ([]store.Message, error)
	ClearChecked(context.Context, string, string, string) ([]store.Message, error)
	ListMessageActions(context.Context, []string) ([]store.MessageAction, error)

	MarkRead(context.Context, []string, string) (int64, error)
	ReceiptStatuses(context.Context, []string, string) (map[string]store.ReceiptStatus, error)
}

// SessionStore keeps refresh sessions and revoked access tokens. Both the
// Postgres store and the Redis store satisfy it.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type Searcher interface {
	Search(context.Context, search.Query) (search.Response, error)
	IndexMessages(...search.MessageRecord)
	RemoveMessages(...string)
}

type Publisher interface {
	Publish(context.Context, realtime.Event) (int64, error)
}

type Exporter interface {
	Export(context.Context, export.List, export.Format) (*export.Result, error)
}

type Service struct {
	cfg       config.Config
	store     Store
	sessions  SessionStore
	passwords *authpw.Service
	search    Searcher
	events    Publisher
	exporter  Exporter
	logger    *slog.Logger
}

type Option func(*Service)

// WithSessions moves refresh sessions out of Postgres.
func WithSessions(sessions SessionStore) Option {
	return func(s *Service) { s.sessions = sessions }
}

func WithSearch(searcher Searcher) Option {
	return func(s *Service) { s.search = searcher }
}

func WithEvents(events Publisher) Option {
	return func(s *Service) { s.events = events }
}

func WithExporter(exporter Exporter) Option {
	return func(s *Service) { s.exporter = exporter }
}

// New builds the service. st must also implement SessionStore unless
// WithSessions is given.
func New(cfg config.Config, st Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:       cfg,
		store:     st,
		passwords: authpw.NewService(st),
		exporter:  export.NewService(cfg.ChromePath),
		logger:    logger,
	}
	if sessions, ok := st.(SessionStore); ok {
		s.sessions = sessions
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// storeErr maps a store failure onto the error contract. Missing rows
// become NotFound with the given message.
func (s *Service) storeErr(ctx context.Context, op string, err error, missing string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(missing)
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	s.logger.ErrorContext(ctx, "storage failure", "op", op, "error", err)
	return storageError(op, err)
}

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		switch {
		case errors.Is(err, authpw.ErrInvalidInput):
			return Session{}, validationError(err.Error(), nil)
		case errors.Is(err, authpw.ErrEmailTaken):
			return Session{}, conflictError("Email already registered")
		default:
			return Session{}, s.storeErr(ctx, "create account", err, "User not found")
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return Session{}, unauthorizedError("Invalid email or password")
		}
		return Session{}, s.storeErr(ctx, "sign in", err, "User not found")
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked before a new
// session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, unauthorizedError("Refresh token required")
	}
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, unauthorizedError("Refresh token invalid or expired")
		}
		return Session{}, s.storeErr(ctx, "look up session", err, "Session not found")
	}
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, unauthorizedError("Refresh token invalid or expired")
		}
		return Session{}, s.storeErr(ctx, "load user", err, "User not found")
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, s.storeErr(ctx, "revoke session", err, "Session not found")
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, s.storeErr(ctx, "save session", err, "Session not found")
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the access token and, when given, the refresh token.
// Revocation failures are logged only.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.WarnContext(ctx, "revoke access token", "error", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.WarnContext(ctx, "revoke refresh token", "error", err)
		}
	}
}
