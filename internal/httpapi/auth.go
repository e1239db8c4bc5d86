package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"shopbill/backend/internal/domain"
	"shopbill/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotApproved        = errors.New("account pending approval")
)

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	SetUserApproval(ctx context.Context, username string, approved bool) (*domain.UserAccount, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore

	// Out-of-band credential pair that may log in before approval. Disabled
	// when the username is empty.
	specialUsername string
	specialPassword string
}

type authCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore, specialUsername string, specialPassword string) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:          []byte(secret),
		tokenTTL:        tokenTTL,
		users:           users,
		specialUsername: strings.ToLower(strings.TrimSpace(specialUsername)),
		specialPassword: specialPassword,
	}
}

// Register creates an account and returns its profile together with a signed
// token. Employees are approved immediately; admin accounts stay pending
// until an existing admin approves them.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.UserProfile, domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || len(username) < 4 {
		return domain.UserProfile{}, domain.LoginResponse{}, fmt.Errorf("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.UserProfile{}, domain.LoginResponse{}, fmt.Errorf("username must not contain spaces")
	}
	if strings.TrimSpace(req.Password) == "" || len(req.Password) < 6 {
		return domain.UserProfile{}, domain.LoginResponse{}, fmt.Errorf("password must be at least 6 characters")
	}

	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleEmployee
	}
	if role != domain.RoleAdmin && role != domain.RoleEmployee {
		return domain.UserProfile{}, domain.LoginResponse{}, fmt.Errorf("role must be admin or employee")
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserProfile{}, domain.LoginResponse{}, fmt.Errorf("failed to hash password")
	}

	now := time.Now().UTC()
	account := domain.UserAccount{
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		IsApproved:   role == domain.RoleEmployee,
		CreatedAt:    now,
	}
	if err := a.users.CreateUser(ctx, account); err != nil {
		return domain.UserProfile{}, domain.LoginResponse{}, err
	}

	expiresAt := now.Add(a.tokenTTL)
	token, err := a.sign(username, role, expiresAt)
	if err != nil {
		return domain.UserProfile{}, domain.LoginResponse{}, err
	}

	profile := domain.UserProfile{
		Username:   username,
		Role:       role,
		IsApproved: account.IsApproved,
		CreatedAt:  now,
	}
	resp := domain.LoginResponse{
		AccessToken: token,
		Role:        role,
		IsApproved:  account.IsApproved,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}
	return profile, resp, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}

	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !user.IsApproved && !a.isSpecialPair(username, req.Password) {
		return domain.LoginResponse{}, ErrNotApproved
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user.Username, user.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		IsApproved:  user.IsApproved,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) isSpecialPair(username string, password string) bool {
	if a.specialUsername == "" {
		return false
	}
	return username == a.specialUsername && password == a.specialPassword
}

func (a *AuthManager) ListUsers(ctx context.Context) ([]domain.UserProfile, error) {
	users, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	profiles := make([]domain.UserProfile, 0, len(users))
	for _, user := range users {
		profiles = append(profiles, domain.UserProfile{
			Username:   user.Username,
			Role:       user.Role,
			IsApproved: user.IsApproved,
			CreatedAt:  user.CreatedAt,
		})
	}
	return profiles, nil
}

// SetApproval flips an account's approval flag. Admins use it both to
// activate pending registrations and to revoke access.
func (a *AuthManager) SetApproval(ctx context.Context, username string, approved bool) (domain.UserProfile, error) {
	user, err := a.users.SetUserApproval(ctx, username, approved)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return domain.UserProfile{
		Username:   user.Username,
		Role:       user.Role,
		IsApproved: user.IsApproved,
		CreatedAt:  user.CreatedAt,
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &authCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := authCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "shopbill",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
