package model

import "github.com/google/uuid"

type VerifyPaymentRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" binding:"required"`
	OrderID       string    `json:"order_id" binding:"required"`
	PaymentID     string    `json:"payment_id" binding:"required"`
	Signature     string    `json:"signature" binding:"required,hexadecimal"`
}

type PaymentVerification struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id"`
	Verified      bool      `json:"verified"`
}
