package models

import "time"

type Meal string

const (
	Lunch  Meal = "lunch"
	Dinner Meal = "dinner"
)

// Meals lists the accepted meal values in display order.
var Meals = []Meal{Lunch, Dinner}

func (m Meal) Valid() bool {
	return m == Lunch || m == Dinner
}

// Key is the natural key of a booking. At most one booking exists per key.
type Key struct {
	Date string `json:"date" bson:"date"`
	Meal Meal   `json:"meal" bson:"meal"`
}

// Booking is one logged meal substitution.
type Booking struct {
	Date         string    `json:"date" bson:"date"`
	Meal         Meal      `json:"meal" bson:"meal"`
	Reason       string    `json:"reason,omitempty" bson:"reason,omitempty"`
	ReimbursedBy string    `json:"reimbursedBy,omitempty" bson:"reimbursedBy,omitempty"`
	Remboursee   bool      `json:"remboursee" bson:"remboursee"`
	CreatedAt    time.Time `json:"createdAt,omitzero" bson:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero" bson:"updatedAt,omitempty"`
}

func (b Booking) Key() Key {
	return Key{Date: b.Date, Meal: b.Meal}
}
