// Package users registers accounts and authenticates them with bcrypt hashed passwords.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/internal/models"
	"storefront-service/internal/stores/postgres"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

var errBadCredentials = apperr.Unauthenticated("invalid email or password")

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	GenerateToken(userID uint, email, role string) (string, time.Time, error)
}

type Conf struct {
	db     *gorm.DB
	tokens TokenIssuer
}

func NewConf(db *gorm.DB, tokens TokenIssuer) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is nil")
	}
	return &Conf{db: db, tokens: tokens}, nil
}

// Register creates a Customer account and signs the user in.
func (c *Conf) Register(ctx context.Context, nu NewUser) (*AuthResponse, error) {
	user, err := c.insertUser(ctx, nu, auth.RoleCustomer)
	if err != nil {
		return nil, err
	}
	slog.Info("user registered", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)), slog.Uint64(logkey.UserID, uint64(user.ID)))
	return c.respond(user)
}

// CreateAdmin creates an Admin account. It backs the -seed-admin flag.
func (c *Conf) CreateAdmin(ctx context.Context, nu NewUser) (*models.User, error) {
	user, err := c.insertUser(ctx, nu, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login checks the credentials and bumps the account's update timestamp.
func (c *Conf) Login(ctx context.Context, cred Credentials) (*AuthResponse, error) {
	db := c.db.WithContext(ctx)

	var user models.User
	err := db.Where("email = ?", normalizeEmail(cred.Email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cred.Password)); err != nil {
		slog.Warn("login failed", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)), slog.Uint64(logkey.UserID, uint64(user.ID)))
		return nil, errBadCredentials
	}

	user.UpdatedAt = time.Now().UTC()
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("updated_at", user.UpdatedAt).Error; err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	return c.respond(user)
}

func (c *Conf) insertUser(ctx context.Context, nu NewUser, role string) (models.User, error) {
	email := normalizeEmail(nu.Email)
	db := c.db.WithContext(ctx)

	var taken int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&taken).Error; err != nil {
		return models.User{}, fmt.Errorf("failed to check email: %w", err)
	}
	if taken > 0 {
		return models.User{}, apperr.Conflict("user with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		FirstName:    strings.TrimSpace(nu.FirstName),
		LastName:     strings.TrimSpace(nu.LastName),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := db.Create(&user).Error; err != nil {
		if postgres.IsUniqueViolation(err) {
			return models.User{}, apperr.Conflict("user with this email already exists")
		}
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (c *Conf) respond(user models.User) (*AuthResponse, error) {
	token, expiresAt, err := c.tokens.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &AuthResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Role:      user.Role,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
