package payment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

const secret = "gateway-secret"

func TestVerify(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	notifications := notification.NewService(store.Notifications, nil, zerolog.Nop(), metrics.New("test", prometheus.NewRegistry()))
	svc := NewService(store.Appointments, notifications, secret, zerolog.Nop())

	apt := &model.Appointment{
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		Date:      time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC),
		Time:      "14:00",
		Status:    model.AppointmentStatusConfirmed,
	}
	require.NoError(t, store.Appointments.Create(ctx, apt))
	patient := &model.Session{PrincipalID: apt.PatientID, Role: model.RolePatient}

	req := &model.VerifyPaymentRequest{
		AppointmentID: apt.ID,
		OrderID:       "order_9A33XWu170gUtm",
		PaymentID:     "pay_29QQoUBi66xm2f",
		Signature:     security.SignPayment(secret, "order_9A33XWu170gUtm", "pay_29QQoUBi66xm2f"),
	}

	out, err := svc.Verify(ctx, patient, req)
	require.NoError(t, err)
	assert.True(t, out.Verified)

	inbox, err := notifications.List(ctx, apt.DoctorID, model.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationPaymentReceived, inbox[0].Type)

	tampered := *req
	tampered.PaymentID = "pay_other"
	_, err = svc.Verify(ctx, patient, &tampered)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))

	stranger := &model.Session{PrincipalID: uuid.New(), Role: model.RolePatient}
	_, err = svc.Verify(ctx, stranger, req)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	missing := *req
	missing.AppointmentID = uuid.New()
	_, err = svc.Verify(ctx, patient, &missing)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}
