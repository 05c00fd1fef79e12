package models

import "time"

// Tour гастрольный тур — учитываемый ресурс, на число которых
// действует лимит тарифа.
type Tour struct {
	ID         int
	AccountUID string
	Name       string
	StartDate  time.Time
	EndDate    *time.Time
	CreatedAt  time.Time
}

// TourStop дата (остановка) тура, лимитируется на каждый родительский тур.
type TourStop struct {
	ID        int
	TourID    int
	City      string
	Venue     string
	Date      time.Time
	CreatedAt time.Time
}

// DummyTour используется для приёма данных из JSON-запроса на создание тура.
type DummyTour struct {
	Name      string `json:"name" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=02-01-2006"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=02-01-2006"`
}

// DummyTourStop используется для приёма данных из JSON-запроса на добавление даты тура.
type DummyTourStop struct {
	City  string `json:"city" validate:"required"`
	Venue string `json:"venue" validate:"required"`
	Date  string `json:"date" validate:"required,datetime=02-01-2006"`
}
