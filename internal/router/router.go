package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/accessguard-core/internal/card"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/accessguard-core/internal/security"
)

// Logger defines the logging interface used by the router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is the pub/sub connection. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Tracker is the authorization side. *card.Tracker satisfies it.
type Tracker interface {
	AddCard(ctx context.Context, cardID, description string) error
	RemoveCard(ctx context.Context, cardID string) error
	SyncActiveCards(ctx context.Context, deviceID string) ([]string, error)
	ProcessReading(ctx context.Context, r card.Reading) (bool, error)
	LogCommand(ctx context.Context, command, uid, deviceID string, at time.Time)
}

// Detector is the intrusion check. *security.Detector satisfies it.
type Detector interface {
	Check(ctx context.Context, r security.Reading) []security.Event
}

// Telemetry receives every access decision. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteAccessDecision(deviceID, cardID string, authorized bool, at time.Time)
}

// Decision is one authorization outcome, for live feeds.
type Decision struct {
	CardID     string    `json:"card_id"`
	DeviceID   string    `json:"device_id"`
	Authorized bool      `json:"authorized"`
	Timestamp  time.Time `json:"timestamp"`
}

// Options configures a Router.
type Options struct {
	// Transport, Tracker and Detector are required.
	Transport Transport
	Tracker   Tracker
	Detector  Detector

	// Topics names the readings, control and response topics.
	Topics mqtt.Topics

	// QoS is used for the two subscriptions.
	QoS byte

	// ResponseQoS is used for every reply. Keep it at 0 unless the
	// broker connection can acknowledge publishes made from inside the
	// delivery callback.
	ResponseQoS byte

	// Telemetry is optional.
	Telemetry Telemetry

	// OnDecision is optional and runs on the delivery goroutine; it must
	// not block.
	OnDecision func(Decision)

	Logger Logger
}

// Router terminates the device protocol. It subscribes to the readings
// topic and its control sub-topic, dispatches each message and publishes
// the reply to <inbound topic>/response.
//
// Messages are handled one at a time, in arrival order, on the MQTT
// delivery goroutine. Each message is fully processed, reply included,
// before the next one starts.
type Router struct {
	transport   Transport
	tracker     Tracker
	detector    Detector
	telemetry   Telemetry
	onDecision  func(Decision)
	topics      mqtt.Topics
	qos         byte
	responseQoS byte
	logger      Logger
	now         func() time.Time
	stats       Stats

	// ctx bounds store calls made from the delivery goroutine. Set by Start.
	ctx context.Context
}

// New creates a Router. Call Start to subscribe.
func New(opts Options) (*Router, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if opts.Tracker == nil {
		return nil, errors.New("tracker is required")
	}
	if opts.Detector == nil {
		return nil, errors.New("detector is required")
	}
	if opts.Topics.Base == "" {
		return nil, errors.New("readings topic is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Router{
		transport:   opts.Transport,
		tracker:     opts.Tracker,
		detector:    opts.Detector,
		telemetry:   opts.Telemetry,
		onDecision:  opts.OnDecision,
		topics:      opts.Topics,
		qos:         opts.QoS,
		responseQoS: opts.ResponseQoS,
		logger:      logger,
		now:         time.Now,
		ctx:         context.Background(),
	}, nil
}

// Start subscribes to the readings and control topics. ctx is used for
// every store call made while handling messages.
func (r *Router) Start(ctx context.Context) error {
	r.ctx = ctx

	for _, topic := range []string{r.topics.Readings(), r.topics.Control()} {
		if err := r.transport.Subscribe(topic, r.qos, r.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		r.logger.Info("subscribed", "topic", topic, "qos", r.qos)
	}
	return nil
}

// Stats returns a snapshot of the traffic counters.
func (r *Router) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}

// HandleMessage dispatches one inbound message. It returns an error only
// for messages dropped without a reply; processing faults are logged and
// answered where the protocol allows.
//
// Dispatch, first match wins:
//  1. command add_card or remove_card: registry change, CommandResponse
//  2. command sync_request: active card ids, SyncResponse
//  3. anything else is a tag reading: authorize, log, detect, AccessResponse
func (r *Router) HandleMessage(topic string, payload []byte) error {
	r.stats.received.Inc()
	receivedAt := r.now().UTC()

	if mqtt.IsResponse(topic) {
		r.stats.dropped.Inc()
		return ErrResponseTopic
	}

	msg, err := decodeMessage(payload)
	if err != nil {
		r.stats.dropped.Inc()
		return err
	}

	switch msg.Command {
	case card.CommandAddCard, card.CommandRemoveCard:
		r.stats.commands.Inc()
		r.handleCardCommand(topic, msg, receivedAt)
		return nil

	case card.CommandSyncRequest:
		if msg.DeviceID == "" {
			r.stats.dropped.Inc()
			return fmt.Errorf("%w: sync_request needs device_id", ErrMissingFields)
		}
		r.stats.commands.Inc()
		r.handleSync(topic, msg, receivedAt)
		return nil

	case "":
		if msg.UID == "" || msg.DeviceID == "" {
			r.stats.dropped.Inc()
			return fmt.Errorf("%w: reading needs uid and device_id", ErrMissingFields)
		}
		r.stats.readings.Inc()
		r.handleReading(topic, msg, receivedAt)
		return nil

	default:
		r.stats.dropped.Inc()
		return fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Command)
	}
}

func (r *Router) handleCardCommand(topic string, msg *message, at time.Time) {
	resp := CommandResponse{
		Type:    TypeResponse,
		Command: msg.Command,
		Status:  StatusSuccess,
		CardID:  msg.UID,
	}

	if msg.UID == "" {
		resp.Status = StatusError
		resp.Reason = "missing card id"
		r.reply(topic, resp)
		return
	}

	r.tracker.LogCommand(r.ctx, msg.Command, msg.UID, msg.DeviceID, at)

	var err error
	if msg.Command == card.CommandAddCard {
		err = r.tracker.AddCard(r.ctx, msg.UID, msg.Description)
	} else {
		err = r.tracker.RemoveCard(r.ctx, msg.UID)
	}
	if err != nil {
		resp.Status = StatusError
		resp.Reason = commandReason(err)
		if resp.Reason == reasonInternal {
			r.logger.Error("card command failed", "command", msg.Command, "card_id", msg.UID, "error", err)
		} else {
			r.logger.Info("card command rejected", "command", msg.Command, "card_id", msg.UID, "reason", resp.Reason)
		}
	}

	r.reply(topic, resp)
}

const reasonInternal = "internal error"

// commandReason maps a tracker error to the reason sent to the device.
func commandReason(err error) string {
	switch {
	case errors.Is(err, card.ErrCardExists):
		return "card already exists"
	case errors.Is(err, card.ErrCardNotFound):
		return "card not found"
	case errors.Is(err, card.ErrInvalidCardID):
		return "invalid card id"
	default:
		return reasonInternal
	}
}

func (r *Router) handleSync(topic string, msg *message, at time.Time) {
	r.tracker.LogCommand(r.ctx, msg.Command, msg.UID, msg.DeviceID, at)

	resp := SyncResponse{
		Type:    TypeResponse,
		Command: CommandSync,
		Status:  StatusSuccess,
		Cards:   []string{},
	}

	ids, err := r.tracker.SyncActiveCards(r.ctx, msg.DeviceID)
	if err != nil {
		r.logger.Error("card sync failed", "device_id", msg.DeviceID, "error", err)
		resp.Status = StatusError
		resp.Reason = reasonInternal
	} else {
		resp.Cards = append(resp.Cards, ids...)
		r.logger.Info("card sync", "device_id", msg.DeviceID, "cards", len(ids))
	}

	r.reply(topic, resp)
}

func (r *Router) handleReading(topic string, msg *message, at time.Time) {
	authorized, err := r.tracker.ProcessReading(r.ctx, card.Reading{
		UID:        msg.UID,
		DeviceID:   msg.DeviceID,
		ReceivedAt: at,
		Extra:      msg.Extra,
	})
	if err != nil {
		r.logger.Error("authorization check failed, access denied",
			"card_id", msg.UID, "device_id", msg.DeviceID, "error", err)
	}

	if authorized {
		r.stats.granted.Inc()
	} else {
		r.stats.denied.Inc()
	}
	r.logger.Info("access decision",
		"card_id", msg.UID,
		"device_id", msg.DeviceID,
		"authorized", authorized,
		"extra", extraKeys(msg.Extra),
	)

	r.detector.Check(r.ctx, security.Reading{CardID: msg.UID, DeviceID: msg.DeviceID, At: at})

	if r.telemetry != nil {
		r.telemetry.WriteAccessDecision(msg.DeviceID, msg.UID, authorized, at)
	}
	if r.onDecision != nil {
		r.onDecision(Decision{CardID: msg.UID, DeviceID: msg.DeviceID, Authorized: authorized, Timestamp: at})
	}

	r.reply(topic, AccessResponse{
		Type:       TypeAccessResponse,
		Status:     StatusSuccess,
		Authorized: authorized,
		CardID:     msg.UID,
	})
}

// reply publishes v to the response topic of inbound. Publish failures are
// logged and counted; the device retries on its own timeout.
func (r *Router) reply(inbound string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.stats.publishErrors.Inc()
		r.logger.Error("encoding response failed", "error", err)
		return
	}
	topic := r.topics.Response(inbound)
	if err := r.transport.Publish(topic, payload, r.responseQoS, false); err != nil {
		r.stats.publishErrors.Inc()
		r.logger.Error("publishing response failed", "topic", topic, "error", err)
	}
}
