package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskhive/api/internal/auth"
	"taskhive/api/internal/authpw"
	"taskhive/api/internal/session"
	"taskhive/api/internal/store"
	"taskhive/api/internal/util"
)

// dataStore is the persistence surface the service needs. *store.PostgresStore
// satisfies it; tests substitute an in-memory fake.
type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	GetGroup(ctx context.Context, groupID string) (store.Group, error)
	GroupMemberIDs(ctx context.Context, groupID string) ([]string, error)
	ListGroupsForMember(ctx context.Context, userID, nameFilter string) ([]store.Group, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]store.User, error)
	InGroupTx(ctx context.Context, fn func(ops store.GroupOps) error) error

	InsertItem(ctx context.Context, item store.Item) error
	GetItemForOwner(ctx context.Context, itemID, userID string) (store.Item, error)
	ListItemsForOwner(ctx context.Context, userID, nameFilter string) ([]store.Item, error)
	UpdateItem(ctx context.Context, item store.Item) error
	DeleteItemForOwner(ctx context.Context, itemID, userID string) (bool, error)

	Ping(ctx context.Context) error
}

// SessionStore holds refresh-token state outside Postgres. When nil the
// service falls back to the refresh_sessions table.
type SessionStore interface {
	Save(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.TokenData, error)
	Revoke(ctx context.Context, tokenHash string) error
}

type Service struct {
	store      dataStore
	sessions   SessionStore
	passwords  *authpw.Service
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(store dataStore, passwords *authpw.Service, secret []byte, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		store:      store,
		passwords:  passwords,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func NewWithSessionStore(store dataStore, passwords *authpw.Service, sessions SessionStore, secret []byte, accessTTL, refreshTTL time.Duration) *Service {
	svc := New(store, passwords, secret, accessTTL, refreshTTL)
	svc.sessions = sessions
	return svc
}

// Session is the authenticated caller for a request. Token fields are only
// populated by the flows that mint tokens.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	ExpiresAt    time.Time
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Register(ctx context.Context, req authpw.RegisterRequest) (map[string]any, error) {
	user, err := s.passwords.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	if stored, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = stored
	}
	return userPayload(user), nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the presented refresh token: the old token is revoked and a
// fresh access/refresh pair is issued. Account state is re-checked so a
// deactivated user cannot keep a session alive.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, errUnauthorized()
	}
	hash := auth.HashToken(refreshToken)

	user, err := s.resolveRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, errUnauthorized()
	}
	if !user.IsActive {
		return Session{}, errUserInactive()
	}

	if err := s.revokeRefreshSession(ctx, hash); err != nil {
		return Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return s.issueSession(ctx, user)
}

// Logout revokes the refresh token and denylists the access token so it can
// no longer be used even before its natural expiry.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken != "" {
		if claims, err := auth.ParseToken(s.secret, accessToken); err == nil {
			if err := s.store.RevokeAccessToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				return err
			}
		}
	}
	if refreshToken != "" {
		if err := s.revokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	return nil
}

// SessionFromToken resolves a bearer token into the calling user. Revoked
// tokens and deactivated accounts are rejected.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.secret, token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if !user.IsActive {
		return Session{}, errUserInactive()
	}
	return Session{UserID: user.ID, Username: user.Username}, nil
}

func (s *Service) Me(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errUnauthorized()
	}
	return userPayload(user), nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	expiresAt := time.Now().Add(s.accessTTL)
	token, err := auth.IssueToken(s.secret, user.ID, user.Username, jti, expiresAt)
	if err != nil {
		return Session{}, err
	}

	refreshToken := util.NewID("rft")
	refreshExpiry := time.Now().Add(s.refreshTTL)
	hash := auth.HashToken(refreshToken)
	if s.sessions != nil {
		err = s.sessions.Save(ctx, hash, session.TokenData{
			UserID:    user.ID,
			Username:  user.Username,
			CreatedAt: time.Now().UTC(),
		}, refreshExpiry)
	} else {
		err = s.store.SaveRefreshSession(ctx, hash, user.ID, refreshExpiry)
	}
	if err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		Username:     user.Username,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) resolveRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if s.sessions == nil {
		return s.store.LookupRefreshSession(ctx, tokenHash)
	}
	data, err := s.sessions.Lookup(ctx, tokenHash)
	if err != nil {
		return store.User{}, err
	}
	return s.store.GetUserByID(ctx, data.UserID)
}

func (s *Service) revokeRefreshSession(ctx context.Context, tokenHash string) error {
	if s.sessions == nil {
		return s.store.RevokeRefreshSession(ctx, tokenHash)
	}
	return s.sessions.Revoke(ctx, tokenHash)
}

func errUnauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
}

func errUserInactive() *DomainError {
	return domainError(http.StatusForbidden, "USER_INACTIVE", "User account is inactive", nil)
}

// isUserInactiveError reports whether err is the inactive-account rejection.
// The auth middleware treats it differently from a plain bad token.
func isUserInactiveError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "USER_INACTIVE"
}

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"full_name":  user.FullName,
		"is_active":  user.IsActive,
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
	}
}

func groupPayload(group store.Group) map[string]any {
	return map[string]any{
		"id":          group.ID,
		"name":        group.Name,
		"description": group.Description,
		"admin_id":    group.AdminID,
		"created_at":  group.CreatedAt,
		"updated_at":  group.UpdatedAt,
	}
}

func itemPayload(item store.Item) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"name":        item.Name,
		"description": item.Description,
		"is_done":     item.IsDone,
		"user_id":     item.UserID,
		"created_at":  item.CreatedAt,
		"updated_at":  item.UpdatedAt,
	}
}
