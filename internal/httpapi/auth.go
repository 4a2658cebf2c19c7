package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"rollyshop/backend/internal/domain"
)

// UserStore is the slice of the repository the auth layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues and verifies HS256 access tokens and manages
// cashier accounts. Accounts live in the user store; a small in-memory
// map mirrors them so login does not hit the store on the hot path.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore

	mu       sync.RWMutex
	accounts map[string]account
}

type account struct {
	hash      string
	role      string
	active    bool
	createdAt time.Time
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	m := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		accounts: make(map[string]account),
	}
	m.syncAccounts(context.Background())
	return m
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	// Re-sync on each login so accounts created by another process
	// (or seeded after startup) are picked up. Fine at POS traffic.
	a.syncAccounts(context.Background())

	acct, ok := a.account(strings.TrimSpace(req.Username))
	if !ok || !checkPassword(acct.hash, req.Password) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !acct.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.issueToken(strings.TrimSpace(req.Username), acct.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        acct.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &accessClaims{}
	keyFn := func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, keyFn, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: subject, Role: claims.Role}, nil
}

func (a *AuthManager) issueToken(username, role string, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "rollyshop",
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) CreateCashier(req domain.CashierCreateRequest) (domain.CashierUser, error) {
	a.syncAccounts(context.Background())

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if err := validateCashierInput(username, req.Password); err != nil {
		return domain.CashierUser{}, err
	}
	if _, taken := a.account(username); taken {
		return domain.CashierUser{}, fmt.Errorf("username already exists")
	}

	hash, err := bcryptHash(req.Password)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("failed to hash password")
	}
	now := time.Now().UTC()

	if a.users != nil {
		err := a.users.CreateUser(context.Background(), domain.UserAccount{
			Username:  username,
			Password:  hash,
			Role:      "cashier",
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return domain.CashierUser{}, err
		}
	}

	a.mu.Lock()
	a.accounts[username] = account{hash: hash, role: "cashier", active: true, createdAt: now}
	a.mu.Unlock()

	return domain.CashierUser{Username: username, Role: "cashier", Active: true, CreatedAt: now}, nil
}

func validateCashierInput(username, password string) error {
	if len(username) < 4 {
		return fmt.Errorf("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return fmt.Errorf("username must not contain spaces")
	}
	if strings.TrimSpace(password) == "" || len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	return nil
}

func (a *AuthManager) ListCashiers() []domain.CashierUser {
	a.syncAccounts(context.Background())

	a.mu.RLock()
	out := make([]domain.CashierUser, 0, len(a.accounts))
	for username, acct := range a.accounts {
		if acct.role != "cashier" {
			continue
		}
		out = append(out, domain.CashierUser{
			Username:  username,
			Role:      acct.role,
			Active:    acct.active,
			CreatedAt: acct.createdAt,
		})
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (a *AuthManager) account(username string) (account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acct, ok := a.accounts[username]
	return acct, ok
}

// syncAccounts mirrors the user store into the in-memory map. Legacy
// plain-text passwords (pre-hash deployments) are upgraded to bcrypt
// and written back so the plain text stops existing at rest.
func (a *AuthManager) syncAccounts(ctx context.Context) {
	if a.users == nil {
		return
	}
	stored, err := a.users.ListUsers(ctx)
	if err != nil || len(stored) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, u := range stored {
		username := strings.ToLower(strings.TrimSpace(u.Username))
		if username == "" {
			continue
		}
		hash := u.Password
		if !looksHashed(hash) {
			if upgraded, err := bcryptHash(hash); err == nil {
				hash = upgraded
				_ = a.users.UpdateUserPassword(ctx, username, upgraded)
			}
		}
		a.accounts[username] = account{
			hash:      hash,
			role:      u.Role,
			active:    u.Active,
			createdAt: u.CreatedAt,
		}
	}
}

func checkPassword(hash, input string) bool {
	if hash == "" || strings.TrimSpace(input) == "" || !looksHashed(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func bcryptHash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func looksHashed(v string) bool {
	return strings.HasPrefix(v, "$2a$") || strings.HasPrefix(v, "$2b$") || strings.HasPrefix(v, "$2y$")
}
