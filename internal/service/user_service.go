package service

import (
	"context"
	"fmt"

	"github.com/bezpauzy/eva-bot/internal/models"
	"github.com/bezpauzy/eva-bot/internal/repository"
)

type UserService struct {
	users   *repository.UserRepository
	queries *repository.QueryRepository
	now     repository.Clock
}

func NewUserService(users *repository.UserRepository, queries *repository.QueryRepository, now repository.Clock) *UserService {
	if now == nil {
		now = repository.SystemClock
	}
	return &UserService{users: users, queries: queries, now: now}
}

func (s *UserService) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("find user by telegram id: %w", err)
	}
	return user, nil
}

func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// GiveConsent records consent for telegramID, registering the user on first use.
func (s *UserService) GiveConsent(ctx context.Context, telegramID int64) (*models.User, error) {
	at := s.now()
	user, err := s.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("find user for consent: %w", err)
	}
	if user == nil {
		user = &models.User{TelegramID: &telegramID, ConsentGivenAt: &at}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("register user: %w", err)
		}
		return user, nil
	}
	if err := s.users.UpdateConsent(ctx, user.ID, at); err != nil {
		return nil, err
	}
	user.ConsentGivenAt = &at
	return user, nil
}

func (s *UserService) SetAgeRange(ctx context.Context, telegramID int64, age models.AgeRange) (*models.User, error) {
	user, err := s.requireByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetAgeRange(ctx, user.ID, age); err != nil {
		return nil, err
	}
	user.AgeRange = &age
	return user, nil
}

func (s *UserService) CancelSubscription(ctx context.Context, telegramID int64) error {
	ok, err := s.users.CancelSubscription(ctx, telegramID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// DeleteAllData removes the user and every query they made. It returns the
// number of removed queries.
func (s *UserService) DeleteAllData(ctx context.Context, telegramID int64) (int64, error) {
	user, err := s.requireByTelegramID(ctx, telegramID)
	if err != nil {
		return 0, err
	}
	return s.users.DeleteWithQueries(ctx, user.ID)
}

// Export returns the user together with all of their queries, newest first.
func (s *UserService) Export(ctx context.Context, telegramID int64) (*models.User, []models.Query, error) {
	user, err := s.requireByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, nil, err
	}
	queries, err := s.queries.ListNewest(ctx, user.ID, 0)
	if err != nil {
		return nil, nil, err
	}
	return user, queries, nil
}

// History returns up to limit of the user's newest queries.
func (s *UserService) History(ctx context.Context, telegramID int64, limit int) ([]models.Query, error) {
	user, err := s.requireByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return s.queries.ListNewest(ctx, user.ID, limit)
}

func (s *UserService) UpdateSubscription(ctx context.Context, userID, status, plan string, subscribed bool) error {
	ok, err := s.users.UpdateSubscription(ctx, userID, status, plan, subscribed)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

func (s *UserService) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	ids, err := s.users.ListTelegramIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list telegram ids: %w", err)
	}
	return ids, nil
}

func (s *UserService) requireByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
