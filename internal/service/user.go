package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/crypto"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/repo"
)

var (
	ErrLoginTaken         = &apperr.Error{Code: apperr.CodeConflict, Message: "login already taken"}
	ErrEmailTaken         = &apperr.Error{Code: apperr.CodeConflict, Message: "email already registered"}
	ErrInvalidCredentials = &apperr.Error{Code: apperr.CodeValidation, Message: "invalid login or password"}
)

// LoginGuard — защита от перебора (реализуется LockoutService).
type LoginGuard interface {
	GetInfo(ctx context.Context, identity string) (LockoutInfo, error)
	RecordFailedAttempt(ctx context.Context, identity string) (LockoutInfo, error)
	ClearFailedAttempts(ctx context.Context, identity string) error
}

// AttemptLimiter — ограничение частоты попыток (реализуется RateLimiter).
type AttemptLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// UserService инкапсулирует регистрацию и аутентификацию пользователей.
type UserService struct {
	repo         repo.UserRepository
	enc          *crypto.Service
	encryptedPII bool
	guard        LoginGuard
	limiter      AttemptLimiter
	log          *zap.SugaredLogger
}

// UserOption настраивает UserService.
type UserOption func(*UserService)

// WithEmailEncryption включает хранение e-mail в виде шифртекста и хеша (схема v2+).
func WithEmailEncryption(enc *crypto.Service, enabled bool) UserOption {
	return func(s *UserService) {
		s.enc = enc
		s.encryptedPII = enabled
	}
}

func WithLoginGuard(g LoginGuard) UserOption {
	return func(s *UserService) { s.guard = g }
}

func WithAttemptLimiter(l AttemptLimiter) UserOption {
	return func(s *UserService) { s.limiter = l }
}

func WithUserLogger(log *zap.SugaredLogger) UserOption {
	return func(s *UserService) { s.log = log }
}

func NewUserService(r repo.UserRepository, opts ...UserOption) *UserService {
	s := &UserService{repo: r, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register создаёт пользователя. email необязателен.
func (s *UserService) Register(ctx context.Context, login, password, email string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, apperr.Validation("login and password are required")
	}

	existing, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err, "lookup login")
	}
	if err == nil && existing != nil {
		return nil, ErrLoginTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(err, "hash password")
	}
	u := &model.User{Login: login, Password: string(hash)}

	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		if err := s.attachEmail(ctx, u, email); err != nil {
			return nil, err
		}
	}

	created, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrLoginTaken
		}
		return nil, apperr.Internal(err, "create user")
	}
	s.log.Infow("user registered", "user_id", created.ID, "login", login)
	return created, nil
}

func (s *UserService) attachEmail(ctx context.Context, u *model.User, email string) error {
	if !s.encryptedPII {
		if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Internal(err, "lookup email")
		}
		u.Email = &email
		return nil
	}

	if s.enc == nil {
		return apperr.Configuration("encrypted e-mail storage requires an encryption key")
	}
	hash := s.enc.Hash(email)
	if _, err := s.repo.GetUserByEmailHash(ctx, hash); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Internal(err, "lookup email hash")
	}
	cipher, err := s.enc.Encrypt(email)
	if err != nil {
		return err
	}
	u.EmailCipher = &cipher
	u.EmailHash = &hash
	return nil
}

// Login проверяет учётные данные с учётом лимита попыток и блокировки.
func (s *UserService) Login(ctx context.Context, login, password, clientIP string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, ErrInvalidCredentials
	}

	if s.limiter != nil {
		key := "login:" + login
		if clientIP != "" {
			key = "ip:" + clientIP
		}
		if ok, retry := s.limiter.Allow(key); !ok {
			s.log.Warnw("login rate limited", "key", key, "retry_after", retry)
			return nil, apperr.RateLimited(retry)
		}
	}

	if s.guard != nil {
		info, err := s.guard.GetInfo(ctx, login)
		if err != nil {
			return nil, err
		}
		if info.Locked && info.LockedUntil != nil {
			return nil, apperr.Locked(login, *info.LockedUntil)
		}
	}

	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err, "lookup login")
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, s.failedAttempt(ctx, login)
	}

	if s.guard != nil {
		if err := s.guard.ClearFailedAttempts(ctx, login); err != nil {
			s.log.Warnw("clear failed attempts", "login", login, "error", err)
		}
	}
	return u, nil
}

func (s *UserService) failedAttempt(ctx context.Context, login string) error {
	if s.guard == nil {
		return ErrInvalidCredentials
	}
	info, err := s.guard.RecordFailedAttempt(ctx, login)
	if err != nil {
		s.log.Errorw("record failed attempt", "login", login, "error", err)
		return ErrInvalidCredentials
	}
	if info.Locked && info.LockedUntil != nil {
		return apperr.Locked(login, *info.LockedUntil)
	}
	return ErrInvalidCredentials
}

// Email возвращает контактный адрес пользователя в открытом виде.
func (s *UserService) Email(_ context.Context, u *model.User) (string, error) {
	switch {
	case u.EmailCipher != nil:
		if s.enc == nil {
			return "", apperr.Configuration("encrypted e-mail requires an encryption key")
		}
		return s.enc.Decrypt(*u.EmailCipher)
	case u.Email != nil:
		return *u.Email, nil
	}
	return "", nil
}
