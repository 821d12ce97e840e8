package app

import (
	"context"
	"errors"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mealduty-service/internal/events"
	"mealduty-service/internal/models"
	"mealduty-service/internal/store"
)

var tracer = otel.Tracer("mealduty-service/internal/app")

func startSpan(ctx context.Context, name string, key models.Key) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("booking.date", key.Date),
		attribute.String("booking.meal", string(key.Meal)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type bookingEvent struct {
	Date    string      `json:"date"`
	Meal    models.Meal `json:"meal"`
	Created *bool       `json:"created,omitempty"`
}

// publish never fails the caller; the mutation is already stored.
func (a *App) publish(ctx context.Context, key string, ev bookingEvent) {
	if a.Events == nil {
		return
	}
	if err := a.Events.PublishJSON(ctx, key, ev); err != nil {
		log.Printf("[book] publish %s: %v", key, err)
	}
}

// SaveBooking creates or fully replaces the booking for (date, meal).
func (a *App) SaveBooking(ctx context.Context, req BookingRequest) (created bool, err error) {
	ctx, span := startSpan(ctx, "SaveBooking", req.Key())
	defer func() { endSpan(span, err) }()

	sctx, cancel := a.storeContext(ctx)
	defer cancel()

	created, err = a.Store.Upsert(sctx, req.Booking(a.now()))
	if err != nil {
		return false, err
	}
	span.SetAttributes(attribute.Bool("booking.created", created))
	a.publish(ctx, events.BookingSaved, bookingEvent{Date: req.Date, Meal: models.Meal(req.Meal), Created: &created})
	return created, nil
}

// ReimburseBooking flags the booking as reimbursed. Returns store.ErrNotFound
// when nothing matches.
func (a *App) ReimburseBooking(ctx context.Context, key models.Key) (err error) {
	ctx, span := startSpan(ctx, "ReimburseBooking", key)
	defer func() { endSpan(span, err) }()

	sctx, cancel := a.storeContext(ctx)
	defer cancel()

	if err = a.Store.MarkReimbursed(sctx, key, a.now()); err != nil {
		return err
	}
	a.publish(ctx, events.BookingReimbursed, bookingEvent{Date: key.Date, Meal: key.Meal})
	return nil
}

func (a *App) DeleteBooking(ctx context.Context, key models.Key) (err error) {
	ctx, span := startSpan(ctx, "DeleteBooking", key)
	defer func() { endSpan(span, err) }()

	sctx, cancel := a.storeContext(ctx)
	defer cancel()

	if err = a.Store.Delete(sctx, key); err != nil {
		return err
	}
	a.publish(ctx, events.BookingDeleted, bookingEvent{Date: key.Date, Meal: key.Meal})
	return nil
}

// ListBookings returns every booking, unordered, with its statistics.
func (a *App) ListBookings(ctx context.Context) (resp ListResponse, err error) {
	ctx, span := tracer.Start(ctx, "ListBookings")
	defer func() { endSpan(span, err) }()

	sctx, cancel := a.storeContext(ctx)
	defer cancel()

	bookings, err := a.Store.List(sctx)
	if err != nil {
		return ListResponse{}, err
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	span.SetAttributes(attribute.Int("booking.count", len(bookings)))
	return ListResponse{
		Bookings: bookings,
		Stats:    ComputeStats(bookings, a.now(), a.Stats),
	}, nil
}
