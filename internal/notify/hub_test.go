package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tasktimer/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversPerUser(t *testing.T) {
	h := NewHub()
	a, unsubA := h.Subscribe(1)
	defer unsubA()
	b, unsubB := h.Subscribe(2)
	defer unsubB()

	n := h.Publish(Notification{UserID: 1, Kind: KindAchievementUnlocked, Title: "hi"})
	assert.Equal(t, 1, n)

	select {
	case got := <-a:
		assert.Equal(t, "hi", got.Title)
	case <-time.After(time.Second):
		t.Fatal("no notification for subscriber")
	}
	select {
	case <-b:
		t.Fatal("other user got the notification")
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe(1)
	assert.Equal(t, 1, h.Subscribers(1))

	unsub()
	unsub()
	assert.Equal(t, 0, h.Subscribers(1))

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.Publish(Notification{UserID: 1}))
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	_, unsub := h.Subscribe(1)
	defer unsub()

	delivered := 0
	for i := 0; i < h.buffer+5; i++ {
		delivered += h.Publish(Notification{UserID: 1})
	}
	assert.Equal(t, h.buffer, delivered)
}

func TestPublisherWithoutNotifyUsesHub(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe(4)
	defer unsub()

	p := &Publisher{Hub: h}
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(context.Background(), Achievement(4, jobs.AchievementPayload{
		AchievementID: 2, Name: "On a Roll", Description: "Reach a 3 task streak", EarnedAt: at,
	})))

	got := <-ch
	assert.Equal(t, KindAchievementUnlocked, got.Kind)
	assert.Equal(t, "Achievement unlocked: On a Roll", got.Title)
	assert.True(t, got.At.Equal(at))

	var data jobs.AchievementPayload
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, uint64(2), data.AchievementID)
}

func TestDecode(t *testing.T) {
	n := TaskReopened(3, 8, "Stretch", time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	b, err := json.Marshal(n)
	require.NoError(t, err)

	got, err := Decode(string(b))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.UserID)
	assert.Equal(t, KindTaskReopened, got.Kind)
	assert.Equal(t, "Stretch", got.Body)
	assert.JSONEq(t, `{"task_id":8}`, string(got.Data))

	_, err = Decode("not json")
	assert.Error(t, err)
}
