package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type recordingPusher struct {
	mu     sync.Mutex
	online map[uuid.UUID]int
	frames map[uuid.UUID][][]byte
	store  repository.NotificationRepository
	seen   []int
}

func newRecordingPusher(store repository.NotificationRepository) *recordingPusher {
	return &recordingPusher{
		online: make(map[uuid.UUID]int),
		frames: make(map[uuid.UUID][][]byte),
		store:  store,
	}
}

func (p *recordingPusher) Push(ctx context.Context, recipient uuid.UUID, payload []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Records how many stored notifications the recipient could fetch at push time.
	if p.store != nil {
		list, _ := p.store.ListByRecipient(ctx, recipient, model.NotificationFilter{})
		p.seen = append(p.seen, len(list))
	}
	p.frames[recipient] = append(p.frames[recipient], payload)
	return p.online[recipient]
}

type failingRepo struct {
	repository.NotificationRepository
}

func (failingRepo) Create(context.Context, *model.Notification) error {
	return errors.New("connection refused")
}

func newService(t *testing.T, repo repository.NotificationRepository, pusher Pusher) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.New("test", prometheus.NewRegistry())
	return NewService(repo, pusher, zerolog.Nop(), m), m
}

func TestNotifyPersistsBeforePush(t *testing.T) {
	store := memory.NewStore()
	pusher := newRecordingPusher(store.Notifications)
	svc, m := newService(t, store.Notifications, pusher)

	recipient := uuid.New()
	pusher.online[recipient] = 2
	related := uuid.New()

	n, err := svc.Notify(context.Background(), Event{
		RecipientID: recipient,
		Type:        model.NotificationAppointmentConfirmed,
		Message:     "Your appointment was confirmed",
		RelatedID:   &related,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, n.ID)

	require.Len(t, pusher.frames[recipient], 1)
	assert.Equal(t, []int{1}, pusher.seen)

	var frame model.LiveEvent
	require.NoError(t, json.Unmarshal(pusher.frames[recipient][0], &frame))
	assert.Equal(t, model.LiveEventNotification, frame.Type)
	require.NotNil(t, frame.Notification)
	assert.Equal(t, n.ID, frame.Notification.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LivePushes.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsCreated.WithLabelValues(string(model.NotificationAppointmentConfirmed))))
}

func TestNotifyOfflineRecipient(t *testing.T) {
	store := memory.NewStore()
	pusher := newRecordingPusher(nil)
	svc, m := newService(t, store.Notifications, pusher)
	recipient := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.Notify(context.Background(), Event{
			RecipientID: recipient,
			Type:        model.NotificationAppointmentCancelled,
			Message:     "cancelled",
		})
		require.NoError(t, err)
	}

	list, err := svc.List(context.Background(), recipient, model.NotificationFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LivePushes.WithLabelValues("offline")))
}

func TestNotifyWithoutPusher(t *testing.T) {
	store := memory.NewStore()
	svc, _ := newService(t, store.Notifications, nil)

	_, err := svc.Notify(context.Background(), Event{RecipientID: uuid.New(), Type: model.NotificationPaymentReceived})
	assert.NoError(t, err)
}

func TestNotifyPersistFailureSkipsPush(t *testing.T) {
	pusher := newRecordingPusher(nil)
	svc, _ := newService(t, failingRepo{}, pusher)
	recipient := uuid.New()

	_, err := svc.Notify(context.Background(), Event{RecipientID: recipient, Type: model.NotificationAppointmentBooked})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrDependency, apperrors.CodeOf(err))
	assert.Empty(t, pusher.frames[recipient])
}

func TestNotifyRequiresRecipient(t *testing.T) {
	svc, _ := newService(t, memory.NewStore().Notifications, nil)

	_, err := svc.Notify(context.Background(), Event{Type: model.NotificationAppointmentBooked})
	assert.True(t, apperrors.HasReason(err, apperrors.ReasonMissingField))
}

func TestReadState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc, _ := newService(t, store.Notifications, nil)
	recipient := uuid.New()

	first, err := svc.Notify(ctx, Event{RecipientID: recipient, Type: model.NotificationAppointmentBooked})
	require.NoError(t, err)
	_, err = svc.Notify(ctx, Event{RecipientID: recipient, Type: model.NotificationAppointmentConfirmed})
	require.NoError(t, err)

	count, err := svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	require.NoError(t, svc.MarkRead(ctx, first.ID, recipient))
	unread, err := svc.List(ctx, recipient, model.NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	err = svc.MarkRead(ctx, first.ID, uuid.New())
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))

	updated, err := svc.MarkAllRead(ctx, recipient)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated)

	count, err = svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	assert.Zero(t, count)
}
