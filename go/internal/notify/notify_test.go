package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Notification
	fail bool
}

func (s *recordingSender) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp down")
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func testUser(name string) models.User {
	return models.User{ID: uuid.New(), Name: name, Email: name + "@example.com", Role: models.UserRoleParticipant}
}

func TestDispatcherDeliversEveryKind(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	alice, bob := testUser("alice"), testUser("bob")
	d.Outbid(&alice, "Vase", decimal.RequireFromString("120"))
	d.Won(&bob, "Vase", decimal.RequireFromString("120"))
	d.AuctionStarted([]models.User{alice, bob}, "Spring sale")

	require.Eventually(t, func() bool { return sender.count() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	d.Wait()

	kinds := map[Kind]int{}
	for _, n := range sender.sent {
		kinds[n.Kind]++
		assert.NotEqual(t, uuid.Nil, n.ID)
	}
	assert.Equal(t, map[Kind]int{KindOutbid: 1, KindWon: 1, KindAuctionStarted: 2}, kinds)
	assert.Equal(t, "alice@example.com", sender.sent[0].Email)
	assert.True(t, sender.sent[0].Amount.Equal(decimal.RequireFromString("120")))
}

func TestDispatcherSurvivesSendFailures(t *testing.T) {
	sender := &recordingSender{fail: true}
	d := NewDispatcher(sender, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	alice := testUser("alice")
	d.Outbid(&alice, "Vase", decimal.RequireFromString("120"))

	sender.mu.Lock()
	sender.fail = false
	sender.mu.Unlock()
	d.Won(&alice, "Lamp", decimal.RequireFromString("80"))

	require.Eventually(t, func() bool { return sender.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	d.Wait()
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Config{QueueSize: 2, Workers: 1})

	alice := testUser("alice")
	for i := 0; i < 5; i++ {
		d.Outbid(&alice, "Vase", decimal.NewFromInt(int64(100+i)))
	}
	assert.Len(t, d.queue, 2)

	// Queued notifications still go out on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)
	d.Wait()
	assert.Equal(t, 2, sender.count())
}

func TestNATSMessage(t *testing.T) {
	s := NewNATSSender(nil, "")
	alice := testUser("alice")
	n := Notification{ID: uuid.New(), Kind: KindWon, UserID: alice.ID, Email: alice.Email, ItemName: "Vase", Amount: decimal.RequireFromString("99.50")}

	msg, err := s.message(n)
	require.NoError(t, err)
	assert.Equal(t, "auction.notifications.won", msg.Subject)
	assert.Equal(t, n.ID.String(), msg.Header.Get(nats.MsgIdHdr))

	var decoded Notification
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, "Vase", decoded.ItemName)
	assert.True(t, decoded.Amount.Equal(n.Amount))
}
