// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auth handles password hashing, JWT issuance and verification, and
// the short-TTL Redis caches that keep authenticated requests off Postgres.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/model"
)

var (
	ErrInvalidToken    = errors.New("auth: invalid token")
	ErrUserDisabled    = errors.New("auth: user account is not active")
	ErrUserNotFound    = errors.New("auth: user not found")
	ErrBadCredentials  = errors.New("auth: invalid email or password")
	ErrAdminRequired   = errors.New("auth: admin privileges required")
	ErrUnsupportedAlgo = errors.New("auth: unsupported signing algorithm")
)

// KV is the Redis surface the token and user caches need.
type KV interface {
	CachedClaims(ctx context.Context, hash16 string) (map[string]string, error)
	CacheClaims(ctx context.Context, hash16 string, claims map[string]string) error
	CachedUser(ctx context.Context, userID string) (map[string]string, error)
	CacheUser(ctx context.Context, userID string, fields map[string]string) error
}

// DB is the durable user lookup surface.
type DB interface {
	UserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Claims is the decoded token payload.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	Weight    decimal.Decimal
	ExpiresAt time.Time
}

// Service issues and verifies access tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	kv     KV
	db     DB
	log    log.Logger
}

// New builds the auth service. Only HS256 tokens are issued or accepted.
func New(secret string, ttl time.Duration, kv KV, db DB, logger log.Logger) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, kv: kv, db: db, log: logger}
}

// HashPassword hashes a plaintext password with bcrypt at default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RandomWeight draws the per-user priority weight, uniform in [0.5, 5.0]
// rounded to two decimals. Assigned once at registration.
func RandomWeight() decimal.Decimal {
	w := 0.5 + rand.Float64()*4.5
	return decimal.NewFromFloat(w).Round(2)
}

// Authenticate verifies email and password against the durable store.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.db.UserByEmail(ctx, email)
	if err != nil {
		return nil, ErrBadCredentials
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, ErrBadCredentials
	}
	if !user.Active() {
		return nil, ErrBadCredentials
	}
	return user, nil
}

// IssueToken signs an HS256 access token for the user.
func (s *Service) IssueToken(user *model.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    user.UserID.String(),
		"email":  user.Email,
		"weight": user.Weight.String(),
		"iat":    now.Unix(),
		"exp":    expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies a token and returns its claims. Recently verified
// tokens are served from the Redis claims cache without re-verifying the
// signature; the cache TTL is short enough that revocation lag stays bounded.
func (s *Service) ParseToken(ctx context.Context, token string) (*Claims, error) {
	hash16 := tokenHash(token)

	if cached, err := s.kv.CachedClaims(ctx, hash16); err == nil && cached != nil {
		if claims, err := claimsFromFields(cached); err == nil {
			if time.Now().Before(claims.ExpiresAt) {
				return claims, nil
			}
			return nil, ErrInvalidToken
		}
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnsupportedAlgo
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	claims, err := claimsFromToken(mapClaims)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if err := s.kv.CacheClaims(ctx, hash16, claims.fields()); err != nil {
		s.log.Warn("claims cache write failed", log.Error(err))
	}
	return claims, nil
}

// CurrentUser resolves the token bearer, preferring the short-TTL Redis user
// hash over Postgres. Disabled users are rejected even on cache hits.
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.ParseToken(ctx, token)
	if err != nil {
		return nil, err
	}

	id := claims.UserID.String()
	if cached, kvErr := s.kv.CachedUser(ctx, id); kvErr == nil && cached != nil {
		user := userFromFields(claims.UserID, cached)
		if !user.Active() {
			return nil, ErrUserDisabled
		}
		return user, nil
	}

	user, err := s.db.UserByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if !user.Active() {
		return nil, ErrUserDisabled
	}

	if err := s.kv.CacheUser(ctx, id, userFields(user)); err != nil {
		s.log.Warn("user cache write failed", log.String("user", id), log.Error(err))
	}
	return user, nil
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

func (c *Claims) fields() map[string]string {
	return map[string]string{
		"sub":    c.UserID.String(),
		"email":  c.Email,
		"weight": c.Weight.String(),
		"exp":    strconv.FormatInt(c.ExpiresAt.Unix(), 10),
	}
}

func claimsFromFields(fields map[string]string) (*Claims, error) {
	id, err := uuid.Parse(fields["sub"])
	if err != nil {
		return nil, fmt.Errorf("auth: bad sub: %w", err)
	}
	weight, err := decimal.NewFromString(fields["weight"])
	if err != nil {
		return nil, fmt.Errorf("auth: bad weight: %w", err)
	}
	exp, err := strconv.ParseInt(fields["exp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("auth: bad exp: %w", err)
	}
	return &Claims{UserID: id, Email: fields["email"], Weight: weight, ExpiresAt: time.Unix(exp, 0)}, nil
}

func claimsFromToken(mc jwt.MapClaims) (*Claims, error) {
	sub, _ := mc["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("auth: bad sub: %w", err)
	}
	email, _ := mc["email"].(string)

	weight := decimal.NewFromInt(1)
	if raw, ok := mc["weight"].(string); ok {
		if w, err := decimal.NewFromString(raw); err == nil {
			weight = w
		}
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("auth: missing exp")
	}
	return &Claims{UserID: id, Email: email, Weight: weight, ExpiresAt: exp.Time}, nil
}

func userFields(u *model.User) map[string]string {
	// password_hash is deliberately not cached.
	return map[string]string{
		"username": u.Username,
		"email":    u.Email,
		"weight":   u.Weight.String(),
		"status":   u.Status,
		"is_admin": strconv.FormatBool(u.IsAdmin),
	}
}

func userFromFields(id uuid.UUID, fields map[string]string) *model.User {
	weight := decimal.NewFromInt(1)
	if w, err := decimal.NewFromString(fields["weight"]); err == nil {
		weight = w
	}
	status := fields["status"]
	if status == "" {
		status = model.UserActive
	}
	return &model.User{
		UserID:   id,
		Username: fields["username"],
		Email:    fields["email"],
		Weight:   weight,
		Status:   status,
		IsAdmin:  fields["is_admin"] == "true",
	}
}
