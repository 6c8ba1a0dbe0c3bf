package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-prebooking/internal/config"
	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/repository"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
	"github.com/iliyamo/cafeteria-prebooking/internal/utils"
)

// UserStore is the user persistence used by AuthHandler.
type UserStore interface {
	Create(ctx context.Context, email, fullName, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// TokenStore is the refresh token persistence used by AuthHandler.
type TokenStore interface {
	Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Validate(ctx context.Context, tokenHash string) (uint64, error)
	Rotate(ctx context.Context, userID uint64, oldHash, newHash string, exp time.Time) error
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// WalletReader reads personal wallets.  settlement.Ledger implementations
// satisfy it.
type WalletReader interface {
	Wallet(ctx context.Context, userID uint64) (*model.PersonalWallet, error)
}

// AuthHandler serves registration, login, token refresh, logout and the
// caller's profile.
type AuthHandler struct {
	Cfg     config.Config
	Users   UserStore
	Tokens  TokenStore
	Wallets WalletReader
}

type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,min=1,max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=STUDENT STAFF"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenPart struct {
	TokenType        string    `json:"token_type"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type userPart struct {
	ID       uint64 `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type authResp struct {
	User   userPart  `json:"user"`
	Tokens tokenPart `json:"tokens"`
}

type profileResp struct {
	userPart
	IsActive      bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
	WalletBalance model.Money `json:"wallet_balance"`
}

func toUserPart(u *model.User) userPart {
	return userPart{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role}
}

// issue signs an access token and stores a fresh refresh token for u.
func (h *AuthHandler) issue(ctx context.Context, u *model.User) (tokenPart, error) {
	at, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return tokenPart{}, err
	}
	rt, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return tokenPart{}, err
	}
	if err := h.Tokens.Store(ctx, u.ID, utils.HashRefreshRaw(rt.Raw), rt.Exp); err != nil {
		return tokenPart{}, err
	}
	return tokenPart{
		TokenType:        "Bearer",
		AccessToken:      at.Token,
		AccessExpiresAt:  at.Exp,
		RefreshToken:     rt.Raw,
		RefreshExpiresAt: rt.Exp,
	}, nil
}

// Register handles POST /api/auth/register.  The personal wallet is
// created with the user, starting at zero.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if valid, err := bindValid(c, &req); !valid {
		return err
	}
	if req.Role == "" {
		req.Role = model.RoleStudent
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	id, err := h.Users.Create(ctx, req.Email, req.FullName, req.Password, req.Role, h.Cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return fail(c, http.StatusConflict, "email_exists", "email already registered")
	}
	if err != nil {
		return failErr(c, err)
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return failErr(c, err)
	}
	tokens, err := h.issue(ctx, u)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusCreated, "registered", authResp{User: toUserPart(u), Tokens: tokens})
}

// Login handles POST /api/auth/login.  Unknown emails and wrong passwords
// get the same answer.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if valid, err := bindValid(c, &req); !valid {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, settlement.ErrNotFound) || (err == nil && !utils.VerifyPassword(u.PasswordHash, req.Password)) {
		return fail(c, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	}
	if err != nil {
		return failErr(c, err)
	}
	if !u.IsActive {
		return fail(c, http.StatusForbidden, "inactive", "account is disabled")
	}
	tokens, err := h.issue(ctx, u)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, "logged in", authResp{User: toUserPart(u), Tokens: tokens})
}

// Refresh handles POST /api/auth/refresh.  The presented refresh token is
// revoked and replaced; replaying it afterwards fails.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if valid, err := bindValid(c, &req); !valid {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	oldHash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))
	userID, err := h.Tokens.Validate(ctx, oldHash)
	if errors.Is(err, repository.ErrTokenInvalid) {
		return fail(c, http.StatusUnauthorized, "invalid_token", "invalid refresh token")
	}
	if err != nil {
		return failErr(c, err)
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return failErr(c, err)
	}
	if !u.IsActive {
		return fail(c, http.StatusForbidden, "inactive", "account is disabled")
	}

	at, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return failErr(c, err)
	}
	rt, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return failErr(c, err)
	}
	err = h.Tokens.Rotate(ctx, u.ID, oldHash, utils.HashRefreshRaw(rt.Raw), rt.Exp)
	if errors.Is(err, repository.ErrTokenInvalid) {
		return fail(c, http.StatusUnauthorized, "invalid_token", "invalid refresh token")
	}
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, "token refreshed", authResp{
		User: toUserPart(u),
		Tokens: tokenPart{
			TokenType:        "Bearer",
			AccessToken:      at.Token,
			AccessExpiresAt:  at.Exp,
			RefreshToken:     rt.Raw,
			RefreshExpiresAt: rt.Exp,
		},
	})
}

// Logout handles POST /api/auth/logout.  A refresh_token in the body
// revokes that token; otherwise a valid bearer token revokes every
// refresh token of its user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw)); err != nil {
			return failErr(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	bearer, found := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if !found {
		return fail(c, http.StatusBadRequest, "bad_request", "refresh_token or bearer token required")
	}
	claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimSpace(bearer))
	if err != nil {
		return unauthorized(c)
	}
	uid, err := claims.UserID()
	if err != nil {
		return unauthorized(c)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		return failErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Profile handles GET /api/auth/profile.
func (h *AuthHandler) Profile(c echo.Context) error {
	uid, found := currentUser(c)
	if !found {
		return unauthorized(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return failErr(c, err)
	}
	w, err := h.Wallets.Wallet(ctx, uid)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, "profile", profileResp{
		userPart:      toUserPart(u),
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
		WalletBalance: w.Balance,
	})
}
