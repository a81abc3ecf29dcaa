package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Headers set on every lifecycle message so consumers can route on them
// without decoding the body.
const (
	headerEventType = "Quiz-Event-Type"
	headerRoomID    = "Quiz-Room-ID"
)

// JetStreamConfig describes the lifecycle stream and how to reach it.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	// Retention: a game's events only matter until downstream consumers
	// have settled rewards and stats.
	MaxAge   time.Duration
	MaxMsgs  int64
	Replicas int
	// Publishes carrying the same event id inside this window are stored once.
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "QUIZ_EVENTS",
		SubjectPrefix:   "quiz.events",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          3 * 24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// JetStreamPublisher relays room lifecycle events to a JetStream stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("quizarena"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("stream", cfg.StreamName).Msg("lost connection to NATS, lifecycle events will queue")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Str("stream", cfg.StreamName).Msg("reconnected to NATS")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Str("stream", cfg.StreamName).Msg("NATS async error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open JetStream: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *JetStreamPublisher) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Quiz room lifecycle events",
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DuplicateWindow,
	}
}

// ensureStream creates the lifecycle stream, or updates it when the settings
// we own have drifted from the running configuration.
func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	want := p.streamConfig()

	stream, err := p.js.Stream(ctx, want.Name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		if _, err := p.js.CreateStream(ctx, want); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", want.Name, err)
		}
		log.Info().Str("stream", want.Name).Strs("subjects", want.Subjects).Msg("created lifecycle stream")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up stream %s: %w", want.Name, err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stream %s: %w", want.Name, err)
	}
	if !streamDrifted(info.Config, want) {
		return nil
	}
	if _, err := p.js.UpdateStream(ctx, want); err != nil {
		return fmt.Errorf("failed to update stream %s: %w", want.Name, err)
	}
	log.Info().Str("stream", want.Name).Msg("updated lifecycle stream settings")
	return nil
}

// streamDrifted reports whether any setting this publisher manages differs.
func streamDrifted(current, want jetstream.StreamConfig) bool {
	return current.MaxAge != want.MaxAge ||
		current.MaxMsgs != want.MaxMsgs ||
		current.Replicas != want.Replicas ||
		current.Duplicates != want.Duplicates ||
		!slices.Equal(current.Subjects, want.Subjects)
}

// Subject returns the subject an event type is published on.
func (p *JetStreamPublisher) Subject(eventType string) string {
	return p.config.SubjectPrefix + "." + eventType
}

// busMessage is the body consumers of the lifecycle stream decode.
type busMessage struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomID    string          `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func (p *JetStreamPublisher) message(event Event) (*nats.Msg, error) {
	data, err := json.Marshal(busMessage{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		RoomID:    event.RoomID,
		Timestamp: event.CreatedAt.UTC(),
		Payload:   event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.EventType, err)
	}
	msg := nats.NewMsg(p.Subject(event.EventType))
	msg.Data = data
	msg.Header.Set(headerEventType, event.EventType)
	msg.Header.Set(headerRoomID, event.RoomID)
	return msg, nil
}

// Publish stores event on the stream. The event id doubles as the JetStream
// message id, so a retried publish inside the duplicate window is a no-op.
func (p *JetStreamPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := p.message(event)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s for room %s: %w", event.EventType, event.RoomID, err)
	}

	log.Debug().
		Str("room_id", event.RoomID).
		Str("event_type", event.EventType).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("lifecycle event published")
	return nil
}

// Close drains pending publishes before closing the connection.
func (p *JetStreamPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
