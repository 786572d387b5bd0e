package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	mw "healthspan/internal/middleware"
	"healthspan/internal/models"
	"healthspan/internal/store"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
	stateTTL        = 10 * time.Minute

	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

type AccountStore interface {
	UpsertGoogle(ctx context.Context, p store.GoogleProfile) (*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type TokenIssuer interface {
	Issue(subject uuid.UUID, kind string, ttl time.Duration) (string, error)
	Parse(token, kind string) (uuid.UUID, error)
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type AuthHandler struct {
	users       AccountStore
	tokens      TokenIssuer
	oauth       *oauth2.Config
	userInfoURL string
	logger      *zap.Logger
}

func NewAuthHandler(users AccountStore, tokens TokenIssuer, cfg GoogleConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		tokens: tokens,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		logger:      logger,
	}
}

type tokenPair struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int     `json:"expires_in"`
	User         UserDTO `json:"user"`
}

func (h *AuthHandler) issuePair(u *models.User) (*tokenPair, error) {
	access, err := h.tokens.Issue(u.ID, mw.TokenAccess, AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := h.tokens.Issue(u.ID, mw.TokenRefresh, RefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	return &tokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(AccessTokenTTL.Seconds()),
		User:         ToUserDTO(*u),
	}, nil
}

// GoogleURL godoc
// @Summary Google sign-in URL
// @Description Returns the consent URL and the signed state to send back to the callback
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/google/url [get]
func (h *AuthHandler) GoogleURL(w http.ResponseWriter, r *http.Request) {
	if h.oauth.ClientID == "" {
		http.Error(w, "google sign-in is not configured", http.StatusServiceUnavailable)
		return
	}
	state, err := h.tokens.Issue(uuid.New(), mw.TokenState, stateTTL)
	if err != nil {
		http.Error(w, "could not create state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":   h.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline),
		"state": state,
	})
}

// GoogleCallback godoc
// @Summary Complete Google sign-in
// @Description Exchanges the authorization code, creates or reactivates the account and issues tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param body body object true "{ code, state }"
// @Success 200 {object} tokenPair
// @Failure 400 {string} string "Bad request"
// @Failure 401 {string} string "Unauthorized"
// @Router /auth/google/callback [post]
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" || body.State == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if _, err := h.tokens.Parse(body.State, mw.TokenState); err != nil {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	tok, err := h.oauth.Exchange(r.Context(), body.Code)
	if err != nil {
		h.logger.Warn("google code exchange failed", zap.Error(err))
		http.Error(w, "could not verify google sign-in", http.StatusUnauthorized)
		return
	}
	profile, err := h.fetchProfile(r.Context(), tok)
	if err != nil {
		h.logger.Warn("google userinfo failed", zap.Error(err))
		http.Error(w, "could not verify google sign-in", http.StatusUnauthorized)
		return
	}

	u, err := h.users.UpsertGoogle(r.Context(), *profile)
	if err != nil {
		h.logger.Error("upsert google user", zap.Error(err))
		http.Error(w, "could not sign in", http.StatusInternalServerError)
		return
	}
	pair, err := h.issuePair(u)
	if err != nil {
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *AuthHandler) fetchProfile(ctx context.Context, tok *oauth2.Token) (*store.GoogleProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo: status %d", resp.StatusCode)
	}

	info := gjson.ParseBytes(raw)
	p := &store.GoogleProfile{
		Subject:   info.Get("sub").String(),
		Email:     info.Get("email").String(),
		Name:      info.Get("name").String(),
		AvatarURL: info.Get("picture").String(),
	}
	if p.Subject == "" || p.Email == "" {
		return nil, errors.New("userinfo: missing subject or email")
	}
	if v := info.Get("email_verified"); v.Exists() && !v.Bool() {
		return nil, errors.New("userinfo: email not verified")
	}
	return p, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	userID, err := h.tokens.Parse(body.RefreshToken, mw.TokenRefresh)
	if err != nil {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	pair, err := h.issuePair(u)
	if err != nil {
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}
