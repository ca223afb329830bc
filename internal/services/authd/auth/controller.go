package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MishaNavrotsky/authd/internal/cache"
	"github.com/MishaNavrotsky/authd/internal/domain/session"
	"github.com/MishaNavrotsky/authd/internal/obs"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

type Opts struct {
	Logger       *zap.Logger
	CookiePath   string
	CookieSecure bool
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// Controller mounts the four session endpoints and owns the cookie
// transport. Tokens travel as HttpOnly, SameSite=Lax cookies on the
// same paths that consume them.
type Controller struct {
	log          *zap.Logger
	uc           *Usecase
	cookiePath   string
	cookieSecure bool
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

func NewController(uc *Usecase, o Opts) *Controller {
	log := o.Logger
	if log == nil {
		log, _ = zap.NewProduction()
	}
	path := o.CookiePath
	if path == "" {
		path = "/"
	}
	return &Controller{
		log:          log,
		uc:           uc,
		cookiePath:   path,
		cookieSecure: o.CookieSecure,
		accessTTL:    o.AccessTTL,
		refreshTTL:   o.RefreshTTL,
	}
}

func (c *Controller) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/signup", c.handleSignUp)
	mux.HandleFunc("POST /auth/signin", c.handleSignIn)
	mux.HandleFunc("POST /auth/signout", c.handleSignOut)
	mux.HandleFunc("POST /auth/refresh", c.handleRefresh)
}

type signUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Controller) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !c.readJSON(w, r, &req) {
		return
	}

	obs.WithTrace(r.Context(), c.log).Info("auth.signup", zap.String("email", req.Email))

	rec, err := c.uc.SignUp(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		c.writeErr(w, r, err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]int64{"id": rec.ID})
}

func (c *Controller) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !c.readJSON(w, r, &req) {
		return
	}

	obs.WithTrace(r.Context(), c.log).Info("auth.signin", zap.String("email", req.Email))

	_, pair, err := c.uc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		c.writeErr(w, r, err)
		return
	}

	c.setTokenCookies(w, pair)
	c.writeJSON(w, http.StatusOK, pair)
}

func (c *Controller) handleSignOut(w http.ResponseWriter, r *http.Request) {
	accessToken := cookieValue(r, accessCookieName)

	rec, err := c.uc.ValidateAccess(r.Context(), accessToken)
	if err != nil {
		c.writeErr(w, r, err)
		return
	}

	obs.WithTrace(r.Context(), c.log).Info("auth.signout", zap.Int64("user_id", rec.ID))

	if err := c.uc.SignOut(r.Context(), rec.ID); err != nil {
		c.writeErr(w, r, err)
		return
	}

	c.clearTokenCookies(w)
	w.WriteHeader(http.StatusOK)
}

func (c *Controller) handleRefresh(w http.ResponseWriter, r *http.Request) {
	accessToken := cookieValue(r, accessCookieName)
	refreshToken := cookieValue(r, refreshCookieName)

	obs.WithTrace(r.Context(), c.log).Info("auth.refresh")

	_, pair, err := c.uc.Refresh(r.Context(), accessToken, refreshToken)
	if err != nil {
		c.writeErr(w, r, err)
		return
	}

	c.setTokenCookies(w, pair)
	c.writeJSON(w, http.StatusOK, pair)
}

func (c *Controller) setTokenCookies(w http.ResponseWriter, pair session.TokenPair) {
	http.SetCookie(w, c.tokenCookie(accessCookieName, pair.AccessToken, c.accessTTL))
	http.SetCookie(w, c.tokenCookie(refreshCookieName, pair.RefreshToken, c.refreshTTL))
}

func (c *Controller) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     c.cookiePath,
			HttpOnly: true,
			Secure:   c.cookieSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0).UTC(),
		})
	}
}

func (c *Controller) tokenCookie(name, value string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.cookiePath,
		HttpOnly: true,
		Secure:   c.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		ck.MaxAge = int(ttl.Seconds())
		ck.Expires = time.Now().Add(ttl).UTC()
	}
	return ck
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c *Controller) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		c.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return false
	}
	return true
}

func (c *Controller) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps usecase errors onto HTTP statuses. Auth failures all
// collapse into one undistinguished 401; infrastructure failures get
// logged with detail but leave the process as a bare 503.
func (c *Controller) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthorized):
		c.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
	case errors.Is(err, ErrEmailExists):
		c.writeJSON(w, http.StatusConflict, map[string]string{"message": "email already registered"})
	case errors.Is(err, ErrWeakPassword):
		c.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "password is too weak"})
	case errors.Is(err, cache.ErrUnavailable):
		obs.WithTrace(r.Context(), c.log).Error("auth.cache_unavailable", zap.Error(err))
		c.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "service temporarily unavailable"})
	default:
		obs.WithTrace(r.Context(), c.log).Error("auth.internal", zap.Error(err))
		c.writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
	}
}
