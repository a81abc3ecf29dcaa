// Package reward issues the prize to a game's winner through an external service.
package reward

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/quiz/metrics"
)

// Request describes the prize for one finished room.
type Request struct {
	RoomID         string `json:"room_id"`
	WinnerWalletID string `json:"winner_address"`
	Score          int    `json:"score"`
	MetadataURI    string `json:"metadata_uri,omitempty"`
}

// Receipt is the reward service's answer.
type Receipt struct {
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

// Awarder is the reward hook invoked once per finished room.
type Awarder interface {
	Award(ctx context.Context, req Request) (*Receipt, error)
}

// NoOpAwarder accepts every request without contacting anything.
type NoOpAwarder struct{}

func (NoOpAwarder) Award(context.Context, Request) (*Receipt, error) {
	return &Receipt{Message: "reward disabled"}, nil
}

const awardEndpoint = "/rewards/award"

// HTTPAwarder posts reward requests to a REST endpoint. A request rejected
// with a temporary status is sent once more before giving up.
type HTTPAwarder struct {
	client     *apiClient
	retryDelay time.Duration
}

func NewHTTPAwarder(baseURL, apiKey string) *HTTPAwarder {
	return &HTTPAwarder{client: newAPIClient(baseURL, apiKey), retryDelay: time.Second}
}

func (a *HTTPAwarder) Award(ctx context.Context, req Request) (*Receipt, error) {
	var receipt Receipt
	err := a.client.postJSON(ctx, awardEndpoint, req, &receipt)

	var status *StatusError
	if errors.As(err, &status) && status.Temporary() {
		log.Warn().Err(err).Str("room_id", req.RoomID).Msg("reward service busy, retrying once")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.retryDelay):
		}
		err = a.client.postJSON(ctx, awardEndpoint, req, &receipt)
	}

	metrics.RewardRequests.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to award room %s: %w", req.RoomID, err)
	}

	log.Info().
		Str("room_id", req.RoomID).
		Str("wallet_id", req.WinnerWalletID).
		Str("transaction_id", receipt.TransactionID).
		Msg("reward issued")

	return &receipt, nil
}
