package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/auth"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

const refreshCookieName = "bugspotter_refresh"

// AuthHandler serves credential issuance: password login with optional
// TOTP, refresh-token rotation, logout, TOTP enrollment, and the OIDC/SAML
// federated login flows. OIDC and SAML are both optional; a nil
// authenticator makes its routes respond 404 rather than panic.
type AuthHandler struct {
	users    *db.UserRepository
	jwt      *auth.JWTManager
	refresh  *auth.RefreshStore
	oidc     *auth.OIDCAuthenticator
	saml     *auth.SAMLAuthenticator
	cookieSecure bool
}

// NewAuthHandler builds the auth handler. oidc/saml may be nil when the
// corresponding provider isn't configured.
func NewAuthHandler(users *db.UserRepository, jwtManager *auth.JWTManager, refresh *auth.RefreshStore, oidc *auth.OIDCAuthenticator, saml *auth.SAMLAuthenticator, cookieSecure bool) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwtManager, refresh: refresh, oidc: oidc, saml: saml, cookieSecure: cookieSecure}
}

// RegisterRoutes mounts the auth endpoints.
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/auth/login", h.Login)
	router.POST("/auth/refresh", h.Refresh)
	router.POST("/auth/logout", auth.RequireUser(h.jwt, h.users), h.Logout)
	router.POST("/auth/totp/enroll", auth.RequireUser(h.jwt, h.users), h.EnrollTOTP)
	router.POST("/auth/totp/verify", auth.RequireUser(h.jwt, h.users), h.VerifyTOTP)

	if h.oidc != nil {
		router.GET("/auth/oidc/login", h.OIDCLogin)
		router.GET("/auth/oidc/callback", h.OIDCCallback)
	}
	if h.saml != nil {
		router.Any("/auth/saml/*path", gin.WrapH(h.saml.Middleware()))
	}
}

// Login authenticates with email/password, optionally completing with a
// TOTP code for accounts that have 2FA enabled.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.FindByEmail(c.Request.Context(), req.Email)
	if err != nil || user == nil || user.PasswordHash == nil || !db.VerifyPassword(req.Password, *user.PasswordHash) {
		respondError(c, apperrors.NewAuthenticationError("invalid email or password"))
		return
	}
	if !user.Active {
		respondError(c, apperrors.NewAuthenticationError("account is disabled"))
		return
	}
	if user.TOTPEnabled {
		if user.TOTPSecret == nil || !auth.ValidateTOTPCode(*user.TOTPSecret, req.TOTPCode) {
			respondError(c, apperrors.NewAuthenticationError("invalid or missing TOTP code"))
			return
		}
	}

	h.issueSession(c, user)
}

// Refresh reads the refresh cookie, validates it against the allowlist,
// rotates it, and mints a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(refreshCookieName)
	if err != nil || token == "" {
		respondError(c, apperrors.NewAuthenticationError("missing refresh token"))
		return
	}

	userID := c.GetHeader("X-User-Id")
	if userID == "" {
		respondError(c, apperrors.NewAuthenticationError("missing user context"))
		return
	}

	ok, err := h.refresh.Validate(c.Request.Context(), userID, token)
	if err != nil {
		respondError(c, apperrors.NewInternalError("auth-refresh-validate", err))
		return
	}
	if !ok {
		respondError(c, apperrors.NewAuthenticationError("refresh token is invalid or expired"))
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil || user == nil || !user.Active {
		respondError(c, apperrors.NewAuthenticationError("account not found or disabled"))
		return
	}

	_ = h.refresh.Revoke(c.Request.Context(), userID, token)
	h.issueSession(c, user)
}

// Logout revokes the presented refresh token and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(refreshCookieName); err == nil && token != "" {
		_ = h.refresh.Revoke(c.Request.Context(), currentUserID(c), token)
	}
	c.SetCookie(refreshCookieName, "", -1, "/", "", h.cookieSecure, true)
	respondOK(c, http.StatusOK, gin.H{"loggedOut": true})
}

// EnrollTOTP generates a new TOTP secret for the authenticated user and
// returns its otpauth:// URI for a QR code, without enabling it yet.
func (h *AuthHandler) EnrollTOTP(c *gin.Context) {
	user, err := h.users.FindByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	secret, uri, err := auth.GenerateTOTPSecret("BugSpotter", user.Email)
	if err != nil {
		respondError(c, apperrors.NewInternalError("auth-totp-generate", err))
		return
	}
	if err := h.users.SetTOTPSecret(c.Request.Context(), user.ID, secret, false); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"secret": secret, "uri": uri})
}

// VerifyTOTP confirms the first code generated from an enrolled secret and
// flips totp_enabled on.
func (h *AuthHandler) VerifyTOTP(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.FindByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if user.TOTPSecret == nil || !auth.ValidateTOTPCode(*user.TOTPSecret, req.Code) {
		respondError(c, apperrors.NewValidationError("invalid TOTP code"))
		return
	}
	if err := h.users.SetTOTPSecret(c.Request.Context(), user.ID, *user.TOTPSecret, true); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"totpEnabled": true})
}

// OIDCLogin redirects the browser to the configured provider's
// authorization endpoint, stashing a CSRF state in a short-lived cookie.
func (h *AuthHandler) OIDCLogin(c *gin.Context) {
	state, err := auth.GenerateOAuthState()
	if err != nil {
		respondError(c, apperrors.NewInternalError("auth-oidc-state", err))
		return
	}
	c.SetCookie("bugspotter_oidc_state", state, 300, "/", "", h.cookieSecure, true)
	c.Redirect(http.StatusFound, h.oidc.AuthorizationURL(state))
}

// OIDCCallback completes the authorization code exchange, links or
// creates the user, and issues a session.
func (h *AuthHandler) OIDCCallback(c *gin.Context) {
	expected, err := c.Cookie("bugspotter_oidc_state")
	if err != nil || expected == "" || expected != c.Query("state") {
		respondError(c, apperrors.NewAuthenticationError("invalid oauth state"))
		return
	}
	c.SetCookie("bugspotter_oidc_state", "", -1, "/", "", h.cookieSecure, true)

	info, err := h.oidc.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		respondError(c, apperrors.NewAuthenticationError("oidc exchange failed"))
		return
	}
	user, err := auth.LinkOrCreateUser(c.Request.Context(), h.users, "oidc", info)
	if err != nil {
		respondError(c, err)
		return
	}
	h.issueSession(c, user)
}

// issueSession mints a fresh access token and rotates the refresh cookie.
func (h *AuthHandler) issueSession(c *gin.Context, user *models.User) {
	accessToken, expiresAt, err := h.jwt.GenerateToken(user.ID, user.Role)
	if err != nil {
		respondError(c, apperrors.NewInternalError("auth-generate-token", err))
		return
	}

	refreshToken, err := h.refresh.Issue(c.Request.Context(), user.ID, 30*24*time.Hour)
	if err != nil {
		respondError(c, apperrors.NewInternalError("auth-issue-refresh", err))
		return
	}
	c.SetCookie(refreshCookieName, refreshToken, 30*24*3600, "/", "", h.cookieSecure, true)

	logger.Security().Info().Str("userId", user.ID).Msg("session issued")
	respondOK(c, http.StatusOK, gin.H{
		"accessToken": accessToken,
		"expiresAt":   expiresAt,
		"user":        user,
	})
}
