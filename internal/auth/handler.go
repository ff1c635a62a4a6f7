package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
	"github.com/slotmarket/backend/pkg/response"
	"github.com/slotmarket/backend/pkg/utils"
)

// Store is the persistence the auth handler needs.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, email, passwordHash, name string, role models.Role) (*models.User, error)
	CreateSession(ctx context.Context, s *models.Session) error
	DeleteSession(ctx context.Context, token string) error
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is returned by login and register.
type TokenResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	store      Store
	signer     *Signer
	resolver   *Resolver
	sessionTTL time.Duration
	cookieName string
	logger     *zap.Logger
}

// NewHandler creates an auth handler. Sessions live for sessionTTL and are
// also set in cookieName when it is non-empty.
func NewHandler(store Store, signer *Signer, resolver *Resolver, sessionTTL time.Duration, cookieName string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:      store,
		signer:     signer,
		resolver:   resolver,
		sessionTTL: sessionTTL,
		cookieName: cookieName,
		logger:     logger,
	}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role := models.Role(strings.ToUpper(req.Role))
	if !role.Valid() {
		response.BadRequest(c, "role must be SPONSOR or PUBLISHER")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.GetUserByEmail(ctx, req.Email); err == nil {
		response.Conflict(c, "email already registered")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		h.logger.Error("lookup user failed", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	user, err := h.store.CreateUser(ctx, strings.ToLower(req.Email), hash, req.Name, role)
	if err != nil {
		h.logger.Error("create user failed", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}
	tok, err := h.startSession(c, user)
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err), zap.String("user_id", user.ID.String()))
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, tok)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			h.logger.Error("lookup user failed", zap.Error(err))
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	tok, err := h.startSession(c, user)
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err), zap.String("user_id", user.ID.String()))
		response.Internal(c, "failed to create session")
		return
	}
	response.OK(c, tok)
}

func (h *Handler) startSession(c *gin.Context, user *models.User) (*TokenResponse, error) {
	raw, err := utils.RandomToken(32)
	if err != nil {
		return nil, err
	}
	s := &models.Session{
		Token:     raw,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(h.sessionTTL).UTC(),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if err := h.store.CreateSession(c.Request.Context(), s); err != nil {
		return nil, err
	}
	signed, err := h.signer.Issue(raw, user.ID, string(user.Role), s.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if h.cookieName != "" {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.cookieName, raw, int(h.sessionTTL.Seconds()), "/", "", false, true)
	}
	return &TokenResponse{Token: signed, ExpiresAt: s.ExpiresAt, User: user.ToPublic()}, nil
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	credential := c.GetString(middleware.ContextCredential)
	token := h.resolver.SessionToken(credential)
	if err := h.store.DeleteSession(c.Request.Context(), token); err != nil {
		h.logger.Error("delete session failed", zap.Error(err))
		response.Internal(c, "failed to log out")
		return
	}
	h.resolver.Evict(c.Request.Context(), credential)
	if h.cookieName != "" {
		c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	}
	response.OK(c, gin.H{"message": "Logged out"})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	response.OK(c, middleware.Principal(c))
}
