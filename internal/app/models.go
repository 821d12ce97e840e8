package app

import (
	"time"

	"mealduty-service/internal/models"
)

// BookingRequest is the body accepted by POST, PATCH and DELETE /api/book.
// Optional fields are pointers so an absent field can be told apart from a
// present empty one.
type BookingRequest struct {
	Date         string  `json:"date" validate:"required"`
	Meal         string  `json:"meal" validate:"required,oneof=lunch dinner"`
	Reason       *string `json:"reason" validate:"omitnil,min=1"`
	ReimbursedBy *string `json:"reimbursedBy"`
	Remboursee   *bool   `json:"remboursee"`
}

func (r BookingRequest) Key() models.Key {
	return models.Key{Date: r.Date, Meal: models.Meal(r.Meal)}
}

// Booking builds the full replacement record; absent optional fields stay
// zero so the store clears them.
func (r BookingRequest) Booking(now time.Time) models.Booking {
	b := models.Booking{
		Date:      r.Date,
		Meal:      models.Meal(r.Meal),
		UpdatedAt: now,
	}
	if r.Reason != nil {
		b.Reason = *r.Reason
	}
	if r.ReimbursedBy != nil {
		b.ReimbursedBy = *r.ReimbursedBy
	}
	if r.Remboursee != nil {
		b.Remboursee = *r.Remboursee
	}
	return b
}

type ListResponse struct {
	Bookings []models.Booking `json:"bookings"`
	Stats    Stats            `json:"stats"`
}

type SessionResponse struct {
	Email   string `json:"email"`
	Allowed bool   `json:"allowed"`
	DevMode bool   `json:"devMode"`
}
