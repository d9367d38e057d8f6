package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventEnvelope(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event, err := NewEvent(EventPostShared, ts, PostEventData{PostID: "p1", OwnerID: "u1", CreatedAt: 1714564800})
	require.NoError(t, err)

	value, err := json.Marshal(event)
	require.NoError(t, err)

	decoded, err := DecodeEvent(Message{Key: "u1", Value: value})
	require.NoError(t, err)
	require.Equal(t, EventPostShared, decoded.Type)
	require.True(t, ts.Equal(decoded.Timestamp))

	var data PostEventData
	require.NoError(t, decoded.DecodeData(&data))
	require.Equal(t, "p1", data.PostID)
	require.Equal(t, "u1", data.OwnerID)
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	_, err := DecodeEvent(Message{Value: []byte("not json")})
	require.Error(t, err)

	event := Event{Type: EventUserFollowed, Data: json.RawMessage(`"oops"`)}
	var data FollowEventData
	require.Error(t, event.DecodeData(&data))
}
