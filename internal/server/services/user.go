// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login and session-token checks.
package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/logging"
	"github.com/dmitrijs2005/taskkeeper/internal/server/auth"
	"github.com/dmitrijs2005/taskkeeper/internal/server/config"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/repomanager"
)

const (
	msgRegisterFields     = "please provide name, email and password"
	msgLoginFields        = "please provide email and password"
	msgUserExists         = "user already exists with this email"
	msgInvalidCredentials = "invalid credentials"
	msgInvalidToken       = "token is not valid"
	msgUserNotFound       = "user not found"
	msgInternal           = "internal error"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

// UserService provides authentication-related operations:
// - Register: create users and issue a session token
// - Login: verify credentials and issue a session token
// - CurrentUser: resolve a session token to its user
type UserService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	hasher        auth.PasswordHasher
	logger        logging.Logger
	jwtSecret     []byte
	tokenValidity time.Duration

	// dummyDigest is compared against on unknown emails so a failed login
	// costs the same bcrypt work whether or not the account exists.
	dummyDigest string
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, h auth.PasswordHasher, l logging.Logger, cfg *config.Config) *UserService {
	s := &UserService{
		db:            db,
		repomanager:   m,
		hasher:        h,
		logger:        l.With("module", "user_service"),
		jwtSecret:     []byte(cfg.SecretKey),
		tokenValidity: cfg.TokenValidityDuration,
	}
	if d, err := h.Hash("taskkeeper-dummy-password"); err == nil {
		s.dummyDigest = d
	}
	return s
}

// Register creates an account and returns a token for it. The email must not
// be taken; the lookup and insert share one transaction and the unique index
// catches concurrent duplicates.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, common.NewError(common.ErrValidation, msgRegisterFields)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			return nil, err
		}
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return nil, common.NewError(common.ErrorInternal, msgInternal)
	}

	var user *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		_, err := repo.GetUserByEmail(ctx, email)
		if err == nil {
			return common.ErrorAlreadyExists
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		user, err = repo.Create(ctx, &models.User{Name: name, Email: email, PasswordHash: digest})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.NewError(common.ErrConflict, msgUserExists)
		}
		s.logger.Error(ctx, "register failed", "error", err)
		return nil, common.NewError(common.ErrorInternal, msgInternal)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return s.issue(ctx, user)
}

// Login checks the credentials. Unknown email and wrong password produce the
// same error.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, common.NewError(common.ErrValidation, msgLoginFields)
	}

	user, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Compare(password, s.dummyDigest)
			return nil, common.NewError(common.ErrUnauthenticated, msgInvalidCredentials)
		}
		s.logger.Error(ctx, "login lookup failed", "error", err)
		return nil, common.NewError(common.ErrorInternal, msgInternal)
	}

	if !s.hasher.Compare(password, user.PasswordHash) {
		return nil, common.NewError(common.ErrUnauthenticated, msgInvalidCredentials)
	}

	return s.issue(ctx, user)
}

// CurrentUser verifies token and loads its user.
func (s *UserService) CurrentUser(ctx context.Context, token string) (*models.PublicUser, error) {
	userID, err := s.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

// GetUser loads a user whose id came from an already verified token. A
// missing user is an authentication failure, not a 404.
func (s *UserService) GetUser(ctx context.Context, userID int64) (*models.PublicUser, error) {
	user, err := s.repomanager.Users(s.db).GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewError(common.ErrUnauthenticated, msgUserNotFound)
		}
		s.logger.Error(ctx, "user lookup failed", "error", err, "user_id", userID)
		return nil, common.NewError(common.ErrorInternal, msgInternal)
	}
	pub := user.Public()
	return &pub, nil
}

// VerifyToken returns the user id carried by a valid token.
func (s *UserService) VerifyToken(token string) (int64, error) {
	userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return 0, common.NewError(common.ErrUnauthenticated, msgInvalidToken)
	}
	return userID, nil
}

func (s *UserService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.tokenValidity)
	if err != nil {
		s.logger.Error(ctx, "token signing failed", "error", err)
		return nil, common.NewError(common.ErrorInternal, msgInternal)
	}
	return &AuthResult{Token: token, User: user.Public()}, nil
}
