package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJetStreamPublisher_Message(t *testing.T) {
	p := &JetStreamPublisher{config: DefaultJetStreamConfig()}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	ev, err := NewEvent("room-1", EventGameEnded, GameEndedPayload{RoomID: "room-1", WinnerWalletID: "0xwinner"}, now)
	require.NoError(t, err)

	msg, err := p.message(ev)
	require.NoError(t, err)
	assert.Equal(t, "quiz.events.GameEnded", msg.Subject)
	assert.Equal(t, EventGameEnded, msg.Header.Get(headerEventType))
	assert.Equal(t, "room-1", msg.Header.Get(headerRoomID))

	var body busMessage
	require.NoError(t, json.Unmarshal(msg.Data, &body))
	assert.Equal(t, ev.ID.String(), body.EventID)
	assert.Equal(t, "room-1", body.RoomID)
	assert.True(t, body.Timestamp.Equal(now))
	assert.Equal(t, time.UTC, body.Timestamp.Location())

	var payload GameEndedPayload
	require.NoError(t, json.Unmarshal(body.Payload, &payload))
	assert.Equal(t, "0xwinner", payload.WinnerWalletID)
}

func TestStreamDrifted(t *testing.T) {
	p := &JetStreamPublisher{config: DefaultJetStreamConfig()}
	want := p.streamConfig()
	assert.Equal(t, []string{"quiz.events.>"}, want.Subjects)

	current := want
	assert.False(t, streamDrifted(current, want))

	current.MaxAge = time.Hour
	assert.True(t, streamDrifted(current, want))

	current = want
	current.Subjects = []string{"quiz.archive.>"}
	assert.True(t, streamDrifted(current, want))
}
