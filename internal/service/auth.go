package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/config"
)

const (
	AuthCookieName = "auth_token"

	sessionIssuer     = "coverly"
	sessionSubject    = "admin"
	defaultSessionTTL = 24 * time.Hour
)

var ErrInvalidTOTP = errors.New("invalid TOTP code")

type AuthService struct {
	logger     *zap.Logger
	enabled    bool
	totpSecret string
	jwtSecret  []byte
	sessionTTL time.Duration
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) (*AuthService, error) {
	ttl := defaultSessionTTL
	if cfg.SessionTTL != "" {
		parsed, err := time.ParseDuration(cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid session ttl %q: %w", cfg.SessionTTL, err)
		}
		ttl = parsed
	}
	if cfg.Enabled && (cfg.TOTPSecret == "" || cfg.JWTSecret == "") {
		return nil, errors.New("auth is enabled but totp_secret or jwt_secret is empty")
	}

	return &AuthService{
		logger:     logger,
		enabled:    cfg.Enabled,
		totpSecret: cfg.TOTPSecret,
		jwtSecret:  []byte(cfg.JWTSecret),
		sessionTTL: ttl,
	}, nil
}

func (a *AuthService) Enabled() bool {
	return a.enabled
}

func (a *AuthService) SessionTTL() time.Duration {
	return a.sessionTTL
}

// GenerateSecret creates a new TOTP secret and its otpauth:// URL.
func (a *AuthService) GenerateSecret(accountName string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Coverly",
		AccountName: accountName,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

func (a *AuthService) ValidateToken(code string) bool {
	valid := totp.Validate(code, a.totpSecret)
	if valid {
		a.logger.Info("TOTP token validation successful")
	} else {
		a.logger.Warn("TOTP token validation failed")
	}
	return valid
}

// Login exchanges a TOTP code for a signed session token.
func (a *AuthService) Login(code string) (string, error) {
	if !a.ValidateToken(code) {
		return "", ErrInvalidTOTP
	}
	return a.CreateSession()
}

func (a *AuthService) CreateSession() (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.sessionTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return token, nil
}

func (a *AuthService) ValidateSession(token string) error {
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return a.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithSubject(sessionSubject),
		jwt.WithExpirationRequired(),
	)
	return err
}

// AuthMiddleware accepts the session from the auth cookie or a bearer
// header. It is a pass-through when auth is disabled.
func (a *AuthService) AuthMiddleware(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if !a.enabled {
			c.Next()
			return
		}
		if _, ok := skip[c.FullPath()]; ok {
			c.Next()
			return
		}

		token, err := c.Cookie(AuthCookieName)
		if err != nil || token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		if err := a.ValidateSession(token); err != nil {
			a.logger.Debug("Rejected session", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.Next()
	}
}
