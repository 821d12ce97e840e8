package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mealduty-service/internal/store"
)

const msgInternal = "Internal server error"

func badRequest(c *gin.Context, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid input", "errors": verr.Fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid input"})
}

func internalError(c *gin.Context, op string, err error, msg string) {
	log.Printf("[book] %s %s: %v", op, c.Request.Method, err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": msg})
}

// POST /api/book
// Creates the booking for (date, meal) or replaces the existing one.
func (a *App) SaveBookingHandler(c *gin.Context) {
	req, err := bindBookingRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	created, err := a.SaveBooking(c.Request.Context(), req)
	if err != nil {
		internalError(c, "save", err, msgInternal)
		return
	}
	msg := "Booking updated successfully"
	if created {
		msg = "Booking created successfully"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// PATCH /api/book
func (a *App) ReimburseBookingHandler(c *gin.Context) {
	req, err := bindBookingRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	err = a.ReimburseBooking(c.Request.Context(), req.Key())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Aucune réservation trouvée à rembourser."})
		return
	}
	if err != nil {
		internalError(c, "reimburse", err, "Erreur lors du remboursement.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Réservation remboursée avec succès."})
}

// GET /api/book
func (a *App) ListBookingsHandler(c *gin.Context) {
	resp, err := a.ListBookings(c.Request.Context())
	if err != nil {
		internalError(c, "list", err, msgInternal)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DELETE /api/book
func (a *App) DeleteBookingHandler(c *gin.Context) {
	req, err := bindBookingRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	err = a.DeleteBooking(c.Request.Context(), req.Key())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "No booking found for the given date and meal"})
		return
	}
	if err != nil {
		internalError(c, "delete", err, msgInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking deleted successfully"})
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		log.Printf("[store] ping: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
