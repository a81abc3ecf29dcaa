package orchestrator

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/models"
	"github.com/mcdev12/quizarena/go/internal/quiz/events"
	"github.com/mcdev12/quizarena/go/internal/quiz/gateway"
)

func (o *Orchestrator) leave(ctx context.Context, client gateway.Client) error {
	room, err := o.loadRoom(ctx, client.RoomID)
	if err != nil {
		return err
	}
	player := room.Player(client.WalletID)
	if player == nil || player.Status == models.PlayerStatusQuit {
		return ErrNotInRoom
	}

	if err := o.removePlayer(ctx, room, client.WalletID, "leave"); err != nil {
		return err
	}
	o.broadcaster.DisconnectPlayer(room.ID, client.WalletID)
	return nil
}

func (o *Orchestrator) kick(ctx context.Context, client gateway.Client, p *events.KickPayload) error {
	room, err := o.loadRoom(ctx, client.RoomID)
	if err != nil {
		return err
	}
	host := room.Player(client.WalletID)
	if host == nil || !host.IsHost {
		return ErrNotHost
	}
	if p.WalletID == client.WalletID {
		return ErrCannotKickSelf
	}
	target := room.Player(p.WalletID)
	if target == nil || target.Status == models.PlayerStatusQuit {
		return ErrPlayerNotFound
	}

	if err := o.removePlayer(ctx, room, p.WalletID, "kick"); err != nil {
		return err
	}
	// Queued ahead of the close, so the kicked player sees why.
	o.broadcaster.SendToPlayer(room.ID, p.WalletID, o.envelope(events.TypeKicked, events.KickedPayload{
		RoomID: room.ID,
		Reason: "removed by host",
	}))
	o.broadcaster.DisconnectPlayer(room.ID, p.WalletID)
	return nil
}

// removePlayer takes a player out of the room. Before the game starts (or
// after it ends) the player is dropped from the roster; mid-game they stay
// on it as quit so results still list them.
func (o *Orchestrator) removePlayer(ctx context.Context, room *models.Room, walletID, action string) error {
	player := room.Player(walletID)
	username := player.Username

	if room.Status == models.RoomStatusWaiting || room.Status.IsTerminal() {
		room.RemovePlayer(walletID)
	} else {
		now := o.clock.Now()
		wasHost := player.IsHost
		player.Status = models.PlayerStatusQuit
		player.QuitAt = &now
		if wasHost {
			room.TransferHost(walletID)
		}
	}
	if err := o.saveRoom(ctx, room); err != nil {
		return err
	}

	o.broadcast(room.ID, events.TypePlayerLeft, events.PlayerEventPayload{
		WalletID: walletID,
		Username: username,
		Action:   action,
		Players:  events.NewPlayerViews(room),
	})
	log.Info().
		Str("room_id", room.ID).
		Str("wallet_id", walletID).
		Str("action", action).
		Msg("player removed")

	if room.Status == models.RoomStatusWaiting {
		o.evaluateIdle(room)
	}
	return o.completeIfAllAnswered(ctx, room)
}

func (o *Orchestrator) chat(ctx context.Context, client gateway.Client, p *events.ChatPayload) error {
	room, err := o.loadRoom(ctx, client.RoomID)
	if err != nil {
		return err
	}
	player := room.Player(client.WalletID)
	if player == nil || player.Status == models.PlayerStatusQuit {
		return ErrNotInRoom
	}
	o.broadcast(room.ID, events.TypeChat, events.ChatPayload{
		Sender:  player.Username,
		Message: strings.TrimSpace(p.Message),
	})
	return nil
}
