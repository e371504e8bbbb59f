package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/pkg/circuitbreaker"
)

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestEmailSender(t *testing.T) {
	dialer := &recordingDialer{}
	sender := NewEmailSenderWithDialer(dialer, "clinic@example.com")

	err := sender.Send(context.Background(), Message{Channel: ChannelEmail, To: "pat@example.com", Subject: "Confirmed", Body: "See you"})
	require.NoError(t, err)
	require.Len(t, dialer.sent, 1)
	assert.Equal(t, []string{"pat@example.com"}, dialer.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"clinic@example.com"}, dialer.sent[0].GetHeader("From"))
	assert.Equal(t, []string{"Confirmed"}, dialer.sent[0].GetHeader("Subject"))

	dialer.err = errors.New("smtp down")
	assert.Error(t, sender.Send(context.Background(), Message{Channel: ChannelEmail, To: "pat@example.com"}))
}

func TestSMSSender(t *testing.T) {
	var got smsRequest
	status := http.StatusAccepted
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	sender := NewSMSSender(SMSConfig{WebhookURL: srv.URL, From: "CLINIC", Timeout: time.Second})
	require.NoError(t, sender.Send(context.Background(), Message{Channel: ChannelSMS, To: "+15550100", Body: "Confirmed"}))
	assert.Equal(t, smsRequest{From: "CLINIC", To: "+15550100", Body: "Confirmed"}, got)

	status = http.StatusBadGateway
	assert.Error(t, sender.Send(context.Background(), Message{Channel: ChannelSMS, To: "+15550100", Body: "x"}))
}

func TestRouter(t *testing.T) {
	dialer := &recordingDialer{}
	router := Router{ChannelEmail: NewEmailSenderWithDialer(dialer, "from@example.com")}

	require.NoError(t, router.Send(context.Background(), Message{Channel: ChannelEmail, To: "a@example.com"}))
	assert.Len(t, dialer.sent, 1)
	assert.Error(t, router.Send(context.Background(), Message{Channel: ChannelSMS, To: "+1"}))
}

func TestOutboxSenderQueuesMessage(t *testing.T) {
	store := memory.NewStore()
	sender := NewOutboxSender(store.Outbox)

	msg := Message{Channel: ChannelSMS, To: "+15550100", Body: "hello"}
	require.NoError(t, sender.Send(context.Background(), msg))

	events, err := store.Outbox.ClaimPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "sms", events[0].EventType)

	var decoded Message
	require.NoError(t, json.Unmarshal(events[0].Payload, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	dialer := &recordingDialer{err: errors.New("smtp down")}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "email", Timeout: time.Minute, FailureThreshold: 2})
	sender := WithBreaker(NewEmailSenderWithDialer(dialer, "from@example.com"), cb)
	msg := Message{Channel: ChannelEmail, To: "a@example.com"}

	assert.Error(t, sender.Send(context.Background(), msg))
	assert.Error(t, sender.Send(context.Background(), msg))
	assert.ErrorIs(t, sender.Send(context.Background(), msg), circuitbreaker.ErrOpen)
	assert.Len(t, dialer.sent, 2)
}

func TestLogSenderNeverFails(t *testing.T) {
	assert.NoError(t, NewLogSender(zerolog.Nop()).Send(context.Background(), Message{Channel: ChannelSMS, To: "+1"}))
}
