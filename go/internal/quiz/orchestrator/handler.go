package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/quiz/events"
	"github.com/mcdev12/quizarena/go/internal/quiz/gateway"
	"github.com/mcdev12/quizarena/go/internal/quiz/metrics"
)

// HandleConnect admits a connection into its room. It runs on the room's
// actor and blocks until the connection has been accepted or rejected.
func (o *Orchestrator) HandleConnect(client gateway.Client) error {
	return o.do(client.RoomID, func(ctx context.Context) error {
		return o.connect(ctx, client)
	})
}

// HandleMessage decodes a client message and queues it on the room's actor.
// Malformed messages are logged and dropped.
func (o *Orchestrator) HandleMessage(client gateway.Client, data []byte) {
	msg, err := events.DecodeClientMessage(data)
	if err != nil {
		metrics.ClientMessages.WithLabelValues("unknown", "malformed").Inc()
		log.Warn().
			Err(err).
			Str("room_id", client.RoomID).
			Str("wallet_id", client.WalletID).
			Str("connection_id", client.ConnectionID).
			Msg("dropping malformed client message")
		return
	}

	if msg.Type == events.TypePing {
		metrics.ClientMessages.WithLabelValues(string(msg.Type), "ok").Inc()
		o.broadcaster.SendToConnection(client.ConnectionID, o.envelope(events.TypePong, events.PongPayload{ServerTime: o.clock.Now().UnixMilli()}))
		return
	}

	o.post(client.RoomID, func(ctx context.Context) {
		o.dispatch(ctx, client, msg)
	})
}

// HandleDisconnect is called after a connection closed on its own.
// remaining is the number of connections the player still holds.
func (o *Orchestrator) HandleDisconnect(client gateway.Client, remaining int) {
	if remaining > 0 {
		return
	}
	o.post(client.RoomID, func(ctx context.Context) {
		if err := o.disconnect(ctx, client); err != nil {
			log.Error().
				Err(err).
				Str("room_id", client.RoomID).
				Str("wallet_id", client.WalletID).
				Msg("failed to handle disconnect")
		}
	})
}

func (o *Orchestrator) dispatch(ctx context.Context, client gateway.Client, msg *events.ClientMessage) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
		o.finishDispatch(client, msg.Type, err)
	}()

	switch msg.Type {
	case events.TypeStartGame:
		err = o.startGame(ctx, client, msg.Payload.(*events.StartGamePayload))
	case events.TypeSubmitAnswer:
		err = o.submitAnswer(ctx, client, msg.Payload.(*events.SubmitAnswerPayload))
	case events.TypeSubmitTieBreakAnswer:
		err = o.submitTieBreakAnswer(ctx, client, msg.Payload.(*events.SubmitAnswerPayload))
	case events.TypeSubmitSuddenDeathAnswer:
		err = o.submitSuddenDeathAnswer(ctx, client, msg.Payload.(*events.SubmitAnswerPayload))
	case events.TypeChat:
		err = o.chat(ctx, client, msg.Payload.(*events.ChatPayload))
	case events.TypeKickPlayer:
		err = o.kick(ctx, client, msg.Payload.(*events.KickPayload))
	case events.TypeLeaveRoom:
		err = o.leave(ctx, client)
	default:
		err = fmt.Errorf("no handler for %s", msg.Type)
	}
}

func (o *Orchestrator) finishDispatch(client gateway.Client, t events.MessageType, err error) {
	if err == nil {
		metrics.ClientMessages.WithLabelValues(string(t), "ok").Inc()
		return
	}

	outcome := "rejected"
	event := log.Info()
	if !isRejection(err) {
		outcome = "error"
		event = log.Error()
	}
	metrics.ClientMessages.WithLabelValues(string(t), outcome).Inc()
	event.
		Err(err).
		Str("room_id", client.RoomID).
		Str("wallet_id", client.WalletID).
		Str("type", string(t)).
		Msg("client message failed")

	o.sendError(client.ConnectionID, err)
}
