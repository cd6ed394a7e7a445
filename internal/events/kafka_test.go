package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
)

type recordingWriter struct {
	msgs     []kafka.Message
	err      error
	deadline bool
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisherNotify(t *testing.T) {
	w := &recordingWriter{}
	p := NewPublisherWithWriter(w, Config{Topic: "nfe.emission.status"}, nil)

	ev := emission.Event{
		CompanyID:  "desdobra",
		AccessKey:  "35231012345678000195550010000000011123456786",
		From:       storage.StatusProcessing,
		To:         storage.StatusAuthorized,
		StatusCode: "100",
		Protocol:   "135230000000001",
		At:         time.Date(2023, 10, 27, 13, 0, 0, 0, time.UTC),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Notify(ctx, ev), "a cancelled caller still publishes")

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.True(t, w.deadline)
	assert.Equal(t, ev.AccessKey, string(msg.Key))

	var decoded emission.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev, decoded)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "application/json", headers["content-type"])
	assert.Equal(t, "nfe-emitter", headers["source"])
	assert.Equal(t, "desdobra", headers["company"])
	assert.Equal(t, "authorized", headers["status"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisherWriteFailure(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := NewPublisherWithWriter(w, Config{Topic: "t"}, nil)
	err := p.Notify(context.Background(), emission.Event{AccessKey: "k", To: storage.StatusSent})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewPublisherValidation(t *testing.T) {
	_, err := NewPublisher(Config{Topic: "t"}, nil)
	assert.ErrorIs(t, err, ErrNoBrokers)

	_, err = NewPublisher(Config{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)

	p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
