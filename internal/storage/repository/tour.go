package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gigroute/billing/internal/models"
)

// ErrLimitReached возвращается транзакционными методами создания,
// когда число существующих ресурсов уже достигло лимита тарифа.
var ErrLimitReached = errors.New("plan limit reached")

// Классы advisory-блокировок, чтобы блокировки аккаунтов и туров
// не пересекались между собой.
const (
	lockClassAccountTours = 1
	lockClassTourStops    = 2
)

// CreateTourReserved создаёт тур, если аккаунт ещё не упёрся в лимит.
// Подсчёт и вставка выполняются в одной транзакции под advisory-замком
// аккаунта: два конкурентных создателя сериализуются, проигравший видит
// строку победителя и получает ErrLimitReached вместо превышения лимита.
// max < 0 означает отсутствие ограничения.
// Возвращает id созданного тура и число туров, наблюдавшееся под замком.
func (s *Storage) CreateTourReserved(ctx context.Context, tour models.Tour, max int) (int, int, error) {
	const op = "storage.CreateTourReserved"
	select {
	case <-ctx.Done():
		return 0, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1, hashtext($2))`,
		lockClassAccountTours, tour.AccountUID); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}

	var current int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tours WHERE account_uid = $1`, tour.AccountUID).Scan(&current); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if max >= 0 && current >= max {
		return 0, current, fmt.Errorf("%s: %w", op, ErrLimitReached)
	}

	var newID int
	if err = tx.QueryRowContext(ctx,
		`INSERT INTO tours (account_uid, name, start_date, end_date)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		tour.AccountUID, tour.Name, tour.StartDate, tour.EndDate).Scan(&newID); err != nil {
		return 0, current, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return 0, current, fmt.Errorf("%s: %w", op, err)
	}
	return newID, current, nil
}

// CreateStopReserved добавляет дату в тур под advisory-замком тура,
// по той же схеме, что и CreateTourReserved.
func (s *Storage) CreateStopReserved(ctx context.Context, stop models.TourStop, max int) (int, int, error) {
	const op = "storage.CreateStopReserved"
	select {
	case <-ctx.Done():
		return 0, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1, $2)`,
		lockClassTourStops, stop.TourID); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}

	var current int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tour_stops WHERE tour_id = $1`, stop.TourID).Scan(&current); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if max >= 0 && current >= max {
		return 0, current, fmt.Errorf("%s: %w", op, ErrLimitReached)
	}

	var newID int
	if err = tx.QueryRowContext(ctx,
		`INSERT INTO tour_stops (tour_id, city, venue, date)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		stop.TourID, stop.City, stop.Venue, stop.Date).Scan(&newID); err != nil {
		return 0, current, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return 0, current, fmt.Errorf("%s: %w", op, err)
	}
	return newID, current, nil
}

// CountTours возвращает число туров аккаунта.
func (s *Storage) CountTours(ctx context.Context, accountUID string) (int, error) {
	const op = "storage.CountTours"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tours WHERE account_uid = $1`, accountUID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// CountStops возвращает число дат в туре.
func (s *Storage) CountStops(ctx context.Context, tourID int) (int, error) {
	const op = "storage.CountStops"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tour_stops WHERE tour_id = $1`, tourID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// MaxStopsAcrossTours возвращает наибольшее число дат среди туров аккаунта.
func (s *Storage) MaxStopsAcrossTours(ctx context.Context, accountUID string) (int, error) {
	const op = "storage.MaxStopsAcrossTours"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(cnt), 0)
		 FROM (
		     SELECT COUNT(st.id) AS cnt
		     FROM tours t
		     LEFT JOIN tour_stops st ON st.tour_id = t.id
		     WHERE t.account_uid = $1
		     GROUP BY t.id
		 ) AS stops_per_tour`, accountUID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// GetTour возвращает тур по ID.
func (s *Storage) GetTour(ctx context.Context, id int) (*models.Tour, error) {
	const op = "storage.GetTour"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	row := s.DB.QueryRowContext(ctx,
		`SELECT id, account_uid, name, start_date, end_date, created_at
		 FROM tours WHERE id = $1`, id)

	var result models.Tour
	if err := row.Scan(&result.ID, &result.AccountUID, &result.Name,
		&result.StartDate, &result.EndDate, &result.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// ListTours возвращает список туров аккаунта с пагинацией.
func (s *Storage) ListTours(ctx context.Context, accountUID string, limit, offset int) ([]*models.Tour, error) {
	const op = "storage.ListTours"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, account_uid, name, start_date, end_date, created_at
		 FROM tours
		 WHERE account_uid = $1
		 ORDER BY id
		 LIMIT $2 OFFSET $3`, accountUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Tour
	for rows.Next() {
		var item models.Tour
		if err := rows.Scan(&item.ID, &item.AccountUID, &item.Name,
			&item.StartDate, &item.EndDate, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListStops возвращает даты тура в хронологическом порядке.
func (s *Storage) ListStops(ctx context.Context, tourID int) ([]*models.TourStop, error) {
	const op = "storage.ListStops"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, tour_id, city, venue, date, created_at
		 FROM tour_stops
		 WHERE tour_id = $1
		 ORDER BY date`, tourID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.TourStop
	for rows.Next() {
		var item models.TourStop
		if err := rows.Scan(&item.ID, &item.TourID, &item.City,
			&item.Venue, &item.Date, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
