// Package entitlement содержит бизнес-логику доступа к записям о тарифах
// аккаунтов: ленивое создание, чтение через кеш и определение действующего
// плана.
package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigroute/billing/internal/models"
)

// Repository определяет методы хранилища записей о тарифах.
type Repository interface {
	// EnsureEntitlement возвращает запись аккаунта, создавая free/active при первом обращении.
	EnsureEntitlement(ctx context.Context, accountUID string) (*models.Entitlement, error)
	// ApplyTransition идемпотентно перезаписывает поля записи.
	ApplyTransition(ctx context.Context, accountUID string, upd models.EntitlementUpdate) (*models.Entitlement, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(ctx context.Context, key string) error
}

const cacheTTL = 5 * time.Minute

// CacheKey возвращает ключ кеша для записи аккаунта.
func CacheKey(accountUID string) string {
	return fmt.Sprintf("entitlement:%s", accountUID)
}

// Service реализует доступ к записям о тарифах с кешированием чтения.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Ensure возвращает запись о тарифе аккаунта, создавая базовую
// free/active при первом обращении. Чтение идёт через кеш; ошибки кеша
// только логируются, ответ всегда строится по данным хранилища.
func (s *Service) Ensure(ctx context.Context, accountUID string) (*models.Entitlement, error) {
	var cached *models.Entitlement
	key := CacheKey(accountUID)
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("failed to read entitlement from cache", slog.String("key", key), slog.Any("err", err))
	}
	if found && cached != nil {
		return cached, nil
	}

	result, err := s.repo.EnsureEntitlement(ctx, accountUID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, result, cacheTTL); err != nil {
		s.log.Warn("failed to cache entitlement", slog.String("key", key), slog.Any("err", err))
	}
	return result, nil
}

// EffectivePlan возвращает план, по которому считаются лимиты аккаунта.
func (s *Service) EffectivePlan(ctx context.Context, accountUID string) (models.Plan, error) {
	ent, err := s.Ensure(ctx, accountUID)
	if err != nil {
		return models.PlanFree, err
	}
	return ent.EffectivePlan(), nil
}

// Invalidate сбрасывает кешированный снимок записи аккаунта.
func (s *Service) Invalidate(ctx context.Context, accountUID string) {
	key := CacheKey(accountUID)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("failed to invalidate entitlement cache", slog.String("key", key), slog.Any("err", err))
	}
}
