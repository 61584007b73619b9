package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/accessguard-core/internal/card"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/accessguard-core/internal/security"
)

const readings = "rfid/readings"

type published struct {
	Topic   string
	Payload []byte
	QoS     byte
}

type mockTransport struct {
	mu         sync.Mutex
	published  []published
	handlers   map[string]mqtt.MessageHandler
	subQoS     map[string]byte
	publishErr error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		handlers: map[string]mqtt.MessageHandler{},
		subQoS:   map[string]byte{},
	}
}

func (m *mockTransport) Publish(topic string, payload []byte, qos byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{Topic: topic, Payload: payload, QoS: qos})
	return nil
}

func (m *mockTransport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	m.subQoS[topic] = qos
	return nil
}

// deliver feeds a message through the handler subscribed to topic.
func (m *mockTransport) deliver(t *testing.T, topic, payload string) error {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	require.True(t, ok, "no subscription for %s", topic)
	return h(topic, []byte(payload))
}

func (m *mockTransport) last(t *testing.T) published {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.published, "nothing published")
	return m.published[len(m.published)-1]
}

func (m *mockTransport) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []card.Change
}

func (r *recordingNotifier) CardChanged(_ context.Context, c card.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

type env struct {
	transport *mockTransport
	cards     *card.SQLiteRepository
	events    *security.SQLiteRepository
	tracker   *card.Tracker
	notifier  *recordingNotifier
	router    *Router
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := dbtest.Open(t)
	e := &env{
		transport: newMockTransport(),
		cards:     card.NewSQLiteRepository(db),
		events:    security.NewSQLiteRepository(db),
		notifier:  &recordingNotifier{},
	}
	e.tracker = card.NewTracker(e.cards, e.notifier)
	detector := security.NewDetector(e.cards, e.events, config.IntrusionConfig{Window: 5 * time.Minute, Threshold: 5})

	r, err := New(Options{
		Transport:   e.transport,
		Tracker:     e.tracker,
		Detector:    detector,
		Topics:      mqtt.Topics{Base: readings},
		QoS:         1,
		ResponseQoS: 0,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	e.router = r
	return e
}

func decode(t *testing.T, p published) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(p.Payload, &m))
	return m
}

func TestRouter_Start(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, map[string]byte{
		readings:              1,
		readings + "/control": 1,
	}, e.transport.subQoS)
}

func TestNew_Validation(t *testing.T) {
	tr := newMockTransport()
	tracker := card.NewTracker(nil, nil)
	det := &security.Detector{}

	tests := []struct {
		name string
		opts Options
	}{
		{"no transport", Options{Tracker: tracker, Detector: det, Topics: mqtt.Topics{Base: readings}}},
		{"no tracker", Options{Transport: tr, Detector: det, Topics: mqtt.Topics{Base: readings}}},
		{"no detector", Options{Transport: tr, Tracker: tracker, Topics: mqtt.Topics{Base: readings}}},
		{"no topic", Options{Transport: tr, Tracker: tracker, Detector: det}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestRouter_Scenario(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	control := readings + "/control"

	// Add A1.
	require.NoError(t, e.transport.deliver(t, control, `{"command":"add_card","uid":"A1","description":"lobby"}`))
	p := e.transport.last(t)
	assert.Equal(t, control+"/response", p.Topic)
	assert.Equal(t, byte(0), p.QoS)
	assert.JSONEq(t, `{"type":"response","command":"add_card","status":"success","card_id":"A1"}`, string(p.Payload))
	assert.Equal(t, []card.Change{{Kind: card.ChangeAdd, CardID: "A1"}}, e.notifier.changes)

	// Authorized reading.
	require.NoError(t, e.transport.deliver(t, readings, `{"uid":"A1","device_id":"D1"}`))
	p = e.transport.last(t)
	assert.Equal(t, readings+"/response", p.Topic)
	assert.JSONEq(t, `{"type":"access_response","status":"success","authorized":true,"card_id":"A1"}`, string(p.Payload))

	c, err := e.cards.Get(ctx, "A1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.AccessCount)
	assert.Equal(t, "lobby", c.Description)

	// Unknown card.
	require.NoError(t, e.transport.deliver(t, readings, `{"uid":"ZZ","device_id":"D1"}`))
	assert.JSONEq(t, `{"type":"access_response","status":"success","authorized":false,"card_id":"ZZ"}`,
		string(e.transport.last(t).Payload))

	events, err := e.events.Since(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, security.EventUnauthorizedAttempt, events[0].Type)
	assert.Equal(t, "ZZ", events[0].CardID)
	assert.Equal(t, "D1", events[0].DeviceID)

	stats := e.router.Stats()
	assert.EqualValues(t, 3, stats.Received)
	assert.EqualValues(t, 1, stats.Commands)
	assert.EqualValues(t, 2, stats.Readings)
	assert.EqualValues(t, 1, stats.Granted)
	assert.EqualValues(t, 1, stats.Denied)
}

func TestRouter_CardCommands(t *testing.T) {
	e := newEnv(t)
	control := readings + "/control"

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			"missing uid",
			`{"command":"add_card"}`,
			`{"type":"response","command":"add_card","status":"error","reason":"missing card id"}`,
		},
		{
			"add",
			`{"command":"add_card","uid":"B2"}`,
			`{"type":"response","command":"add_card","status":"success","card_id":"B2"}`,
		},
		{
			"duplicate add",
			`{"command":"add_card","uid":"B2"}`,
			`{"type":"response","command":"add_card","status":"error","reason":"card already exists","card_id":"B2"}`,
		},
		{
			"numeric uid",
			`{"command":"add_card","uid":12345678901234567890}`,
			`{"type":"response","command":"add_card","status":"success","card_id":"12345678901234567890"}`,
		},
		{
			"remove",
			`{"command":"remove_card","uid":"B2"}`,
			`{"type":"response","command":"remove_card","status":"success","card_id":"B2"}`,
		},
		{
			"remove again",
			`{"command":"remove_card","uid":"B2"}`,
			`{"type":"response","command":"remove_card","status":"error","reason":"card not found","card_id":"B2"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, e.transport.deliver(t, control, tt.payload))
			assert.JSONEq(t, tt.want, string(e.transport.last(t).Payload))
		})
	}
}

func TestRouter_CommandsAreLoggedButNotReadings(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.transport.deliver(t, readings+"/control", `{"command":"add_card","uid":"A1","device_id":"admin"}`))

	logs, err := e.cards.AllLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, card.CommandAddCard, logs[0].Command)
	assert.Nil(t, logs[0].Authorized)

	n, err := e.cards.CountReadings(ctx, "A1", time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRouter_Sync(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.tracker.AddCard(ctx, "B2", ""))
	require.NoError(t, e.tracker.AddCard(ctx, "A1", ""))

	require.NoError(t, e.transport.deliver(t, readings+"/control", `{"command":"sync_request","device_id":"D1"}`))
	assert.JSONEq(t, `{"type":"response","command":"sync","status":"success","cards":["A1","B2"]}`,
		string(e.transport.last(t).Payload))

	before := e.transport.count()
	err := e.transport.deliver(t, readings+"/control", `{"command":"sync_request"}`)
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Equal(t, before, e.transport.count(), "no reply")
}

func TestRouter_Drops(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{"not json", readings, `uid=A1`, ErrMalformedPayload},
		{"json array", readings, `["A1"]`, ErrMalformedPayload},
		{"json null", readings, `null`, ErrMalformedPayload},
		{"missing device", readings, `{"uid":"A1"}`, ErrMissingFields},
		{"missing uid", readings, `{"device_id":"D1"}`, ErrMissingFields},
		{"uid wrong type", readings, `{"uid":true,"device_id":"D1"}`, ErrMissingFields},
		{"unknown command", readings + "/control", `{"command":"reboot","uid":"A1"}`, ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			err := e.transport.deliver(t, tt.topic, tt.payload)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, e.transport.count(), "dropped messages get no reply")
			assert.EqualValues(t, 1, e.router.Stats().Dropped)
		})
	}
}

func TestRouter_ResponseTopicIgnored(t *testing.T) {
	e := newEnv(t)
	err := e.router.HandleMessage(readings+"/response", []byte(`{"uid":"A1","device_id":"D1"}`))
	assert.ErrorIs(t, err, ErrResponseTopic)
	assert.Zero(t, e.transport.count())
}

func TestRouter_ReadingExtraIsLogged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.transport.deliver(t, readings, `{"uid":"A1","device_id":"D1","rssi":-40,"fw":"1.2.0"}`))

	logs, err := e.cards.AllLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"rssi":-40,"fw":"1.2.0"}`, string(logs[0].Extra))
}

func TestRouter_IntrusionThroughRouter(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.tracker.AddCard(ctx, "A1", ""))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := 0
	e.router.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * 10 * time.Second)
	}

	for n := 0; n < 6; n++ {
		require.NoError(t, e.transport.deliver(t, readings, `{"uid":"A1","device_id":"D1"}`))
	}

	events, err := e.events.Since(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, security.EventSuspiciousActivity, events[0].Type)
	assert.Equal(t, 6, events[0].Attempts)
}

type fakeTelemetry struct {
	decisions []bool
}

func (f *fakeTelemetry) WriteAccessDecision(_, _ string, authorized bool, _ time.Time) {
	f.decisions = append(f.decisions, authorized)
}

func TestRouter_TelemetryAndDecisionFeed(t *testing.T) {
	e := newEnv(t)
	tel := &fakeTelemetry{}
	var feed []Decision
	e.router.telemetry = tel
	e.router.onDecision = func(d Decision) { feed = append(feed, d) }

	require.NoError(t, e.transport.deliver(t, readings, `{"uid":"ZZ","device_id":"D9"}`))

	assert.Equal(t, []bool{false}, tel.decisions)
	require.Len(t, feed, 1)
	assert.Equal(t, "ZZ", feed[0].CardID)
	assert.Equal(t, "D9", feed[0].DeviceID)
}

// brokenTracker fails every call.
type brokenTracker struct{}

func (brokenTracker) AddCard(context.Context, string, string) error { return errors.New("store down") }
func (brokenTracker) RemoveCard(context.Context, string) error      { return errors.New("store down") }
func (brokenTracker) SyncActiveCards(context.Context, string) ([]string, error) {
	return nil, errors.New("store down")
}
func (brokenTracker) ProcessReading(context.Context, card.Reading) (bool, error) {
	return false, errors.New("store down")
}
func (brokenTracker) LogCommand(context.Context, string, string, string, time.Time) {}

type nopDetector struct{}

func (nopDetector) Check(context.Context, security.Reading) []security.Event { return nil }

func TestRouter_StoreFaultsStillReply(t *testing.T) {
	tr := newMockTransport()
	r, err := New(Options{Transport: tr, Tracker: brokenTracker{}, Detector: nopDetector{}, Topics: mqtt.Topics{Base: readings}})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	require.NoError(t, tr.deliver(t, readings, `{"uid":"A1","device_id":"D1"}`))
	assert.JSONEq(t, `{"type":"access_response","status":"success","authorized":false,"card_id":"A1"}`,
		string(tr.last(t).Payload))

	require.NoError(t, tr.deliver(t, readings+"/control", `{"command":"add_card","uid":"A1"}`))
	assert.Equal(t, "internal error", decode(t, tr.last(t))["reason"])

	require.NoError(t, tr.deliver(t, readings+"/control", `{"command":"sync_request","device_id":"D1"}`))
	got := decode(t, tr.last(t))
	assert.Equal(t, StatusError, got["status"])
	assert.Equal(t, []any{}, got["cards"])
}

func TestRouter_PublishFailureCounted(t *testing.T) {
	e := newEnv(t)
	e.transport.publishErr = mqtt.ErrNotConnected

	require.NoError(t, e.transport.deliver(t, readings, `{"uid":"A1","device_id":"D1"}`))
	assert.EqualValues(t, 1, e.router.Stats().PublishErrors)
}

func TestDecodeMessage(t *testing.T) {
	m, err := decodeMessage([]byte(`{"uid":"A1","device_id":7,"description":"x","extra":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "A1", m.UID)
	assert.Equal(t, "7", m.DeviceID)
	assert.Equal(t, "x", m.Description)
	assert.JSONEq(t, `{"description":"x","extra":{"a":1}}`, string(m.Extra))

	m, err = decodeMessage([]byte(`{"uid":"A1","device_id":"D1"}`))
	require.NoError(t, err)
	assert.Nil(t, m.Extra)
}

type pointRecorder struct {
	mu     sync.Mutex
	names  []string
	fields []map[string]interface{}
}

func (p *pointRecorder) WritePoint(measurement string, _ map[string]string, fields map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, measurement)
	p.fields = append(p.fields, fields)
}

func TestRouter_ReportStats(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.router.HandleMessage(readings, []byte(`{"uid":"A1","device_id":"door-1"}`)))
	require.Error(t, e.router.HandleMessage(readings, []byte(`not json`)))

	w := &pointRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.router.ReportStats(ctx, w, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReportStats did not return after cancel")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Equal(t, []string{statsMeasurement}, w.names, "final snapshot written on cancel")
	assert.Equal(t, int64(2), w.fields[0]["received"])
	assert.Equal(t, int64(1), w.fields[0]["readings"])
	assert.Equal(t, int64(1), w.fields[0]["denied"])
	assert.Equal(t, int64(1), w.fields[0]["dropped"])
}
