package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gigroute/billing/internal/models"
)

const entitlementColumns = `id, account_uid, plan, status, provider_subscription_ref,
	provider_customer_ref, current_period_start, current_period_end,
	cancel_at_period_end, created_at, updated_at`

func scanEntitlement(row interface{ Scan(...any) error }) (*models.Entitlement, error) {
	var e models.Entitlement
	var plan, status string
	if err := row.Scan(&e.ID, &e.AccountUID, &plan, &status,
		&e.ProviderSubscriptionRef, &e.ProviderCustomerRef,
		&e.CurrentPeriodStart, &e.CurrentPeriodEnd,
		&e.CancelAtPeriodEnd, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Plan = models.Plan(plan)
	e.Status = models.Status(status)
	return &e, nil
}

// EnsureEntitlement возвращает запись о тарифе аккаунта, создавая
// free/active по умолчанию, если записи ещё нет. Вставка терпима
// к нарушению уникальности: при гонке двух первых обращений вторая
// вставка превращается в no-op, после чего строка перечитывается,
// поэтому на аккаунт никогда не возникает двух записей.
func (s *Storage) EnsureEntitlement(ctx context.Context, accountUID string) (*models.Entitlement, error) {
	const op = "storage.EnsureEntitlement"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO entitlements (account_uid, plan, status)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (account_uid) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query,
		accountUID, string(models.PlanFree), string(models.StatusActive)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	row := s.DB.QueryRowContext(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE account_uid = $1`, accountUID)
	result, err := scanEntitlement(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetEntitlement возвращает запись о тарифе по uid аккаунта.
func (s *Storage) GetEntitlement(ctx context.Context, accountUID string) (*models.Entitlement, error) {
	const op = "storage.GetEntitlement"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	row := s.DB.QueryRowContext(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE account_uid = $1`, accountUID)
	result, err := scanEntitlement(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// buildEntitlementSet собирает SET-часть запроса из non-nil полей обновления.
// updated_at выставляется всегда.
func buildEntitlementSet(upd models.EntitlementUpdate) ([]string, []any) {
	set := []string{"updated_at = now()"}
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Plan != nil {
		add("plan", string(*upd.Plan))
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.ClearProviderSubscriptionRef {
		set = append(set, "provider_subscription_ref = NULL")
	} else if upd.ProviderSubscriptionRef != nil {
		add("provider_subscription_ref", *upd.ProviderSubscriptionRef)
	}
	if upd.ProviderCustomerRef != nil {
		add("provider_customer_ref", *upd.ProviderCustomerRef)
	}
	if upd.CurrentPeriodStart != nil {
		add("current_period_start", *upd.CurrentPeriodStart)
	}
	if upd.ClearCurrentPeriodEnd {
		set = append(set, "current_period_end = NULL")
	} else if upd.CurrentPeriodEnd != nil {
		add("current_period_end", *upd.CurrentPeriodEnd)
	}
	if upd.CancelAtPeriodEnd != nil {
		add("cancel_at_period_end", *upd.CancelAtPeriodEnd)
	}
	return set, args
}

// ApplyTransition идемпотентно перезаписывает переданные поля записи
// аккаунта. Никаких счётчиков и дельт: повторное применение того же
// набора полей даёт то же конечное состояние.
func (s *Storage) ApplyTransition(ctx context.Context, accountUID string, upd models.EntitlementUpdate) (*models.Entitlement, error) {
	const op = "storage.ApplyTransition"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	set, args := buildEntitlementSet(upd)
	args = append(args, accountUID)
	query := fmt.Sprintf(`UPDATE entitlements SET %s WHERE account_uid = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), entitlementColumns)

	result, err := scanEntitlement(s.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ApplyTransitionBySubscriptionRef перезаписывает поля записи, найденной
// по идентификатору подписки провайдера из самого события. Запись ищется
// именно по ссылке, а не по "текущей подписке аккаунта": устаревшее
// событие для уже отвязанной подписки естественно превращается в no-op.
// Возвращает nil без ошибки, если ссылка никому не принадлежит.
func (s *Storage) ApplyTransitionBySubscriptionRef(ctx context.Context, subscriptionRef string, upd models.EntitlementUpdate) (*models.Entitlement, error) {
	const op = "storage.ApplyTransitionBySubscriptionRef"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	set, args := buildEntitlementSet(upd)
	args = append(args, subscriptionRef)
	query := fmt.Sprintf(`UPDATE entitlements SET %s WHERE provider_subscription_ref = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), entitlementColumns)

	result, err := scanEntitlement(s.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SetProviderCustomerRef сохраняет идентификатор клиента у провайдера.
// Ссылку безопасно хранить и переиспользовать независимо от исхода
// checkout-сессии.
func (s *Storage) SetProviderCustomerRef(ctx context.Context, accountUID, customerRef string) error {
	const op = "storage.SetProviderCustomerRef"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE entitlements
			  SET provider_customer_ref = $1, updated_at = now()
			  WHERE account_uid = $2`
	if _, err := s.DB.ExecContext(ctx, query, customerRef, accountUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetCancelAtPeriodEnd помечает подписку к отмене в конце оплаченного
// периода. До конца периода аккаунт остаётся с правами тарифа.
func (s *Storage) SetCancelAtPeriodEnd(ctx context.Context, accountUID string, flag bool) (*models.Entitlement, error) {
	const op = "storage.SetCancelAtPeriodEnd"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE entitlements
			  SET cancel_at_period_end = $1, updated_at = now()
			  WHERE account_uid = $2
			  RETURNING ` + entitlementColumns
	result, err := scanEntitlement(s.DB.QueryRowContext(ctx, query, flag, accountUID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
