package repo

import (
	"context"

	"gorm.io/gorm"

	"ArchiveKeeper/internal/model"
)

// UserRepository определяет контракт доступа к пользователям для слоя сервиса.
type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	// GetUserByEmailHash ищет по детерминированному хешу e-mail (схема v2+)
	GetUserByEmailHash(ctx context.Context, hash string) (*model.User, error)
	// GetUserByEmail ищет по открытому e-mail (схема v1)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type userRepo struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepo{db: db} }

func (r *userRepo) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return r.takeWhere(ctx, "login = ?", login)
}

func (r *userRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.takeWhere(ctx, "id = ?", id)
}

func (r *userRepo) GetUserByEmailHash(ctx context.Context, hash string) (*model.User, error) {
	return r.takeWhere(ctx, "email_hash = ?", hash)
}

func (r *userRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.takeWhere(ctx, "email = ?", email)
}

func (r *userRepo) takeWhere(ctx context.Context, cond string, arg any) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where(cond, arg).Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
