package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records everything sent to it. Shared across the package's
// tests as the stand-in for a live websocket channel.
type fakeChannel struct {
	id string

	mu       sync.Mutex
	messages []*ChatMessage
	sendErr  error
	closed   bool
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id}
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(msg *ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) received() []*ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func testSession(channelID, roomID string) *Session {
	return &Session{
		ChannelID: channelID,
		Identity:  Identity{ID: "user-" + channelID, Email: channelID + "@example.com"},
		RoomID:    roomID,
	}
}

func TestRegistryJoinAndMembers(t *testing.T) {
	reg := NewRegistry()

	a := newFakeChannel("a")
	b := newFakeChannel("b")
	reg.Join(testSession("a", "room1"), a)
	reg.Join(testSession("b", "room1"), b)
	reg.Join(testSession("c", "room2"), newFakeChannel("c"))

	assert.Equal(t, 2, reg.RoomCount())
	assert.Len(t, reg.MembersOf("room1"), 2)
	assert.Len(t, reg.MembersOf("room2"), 1)
	assert.Nil(t, reg.MembersOf("missing"))
}

func TestRegistryJoinIdempotent(t *testing.T) {
	reg := NewRegistry()
	ch := newFakeChannel("a")

	sess := testSession("a", "room1")
	reg.Join(sess, ch)
	reg.Join(sess, ch)

	assert.Len(t, reg.MembersOf("room1"), 1)
}

func TestRegistryLeaveRemovesEmptyRoom(t *testing.T) {
	reg := NewRegistry()

	sessA := testSession("a", "room1")
	sessB := testSession("b", "room1")
	reg.Join(sessA, newFakeChannel("a"))
	reg.Join(sessB, newFakeChannel("b"))

	reg.Leave(sessA)
	require.Equal(t, 1, reg.RoomCount())
	assert.Len(t, reg.MembersOf("room1"), 1)

	reg.Leave(sessB)
	assert.Equal(t, 0, reg.RoomCount())
	assert.Nil(t, reg.MembersOf("room1"))
}

func TestRegistryLeaveIdempotent(t *testing.T) {
	reg := NewRegistry()

	sess := testSession("a", "room1")
	reg.Join(sess, newFakeChannel("a"))
	reg.Leave(sess)
	reg.Leave(sess)
	reg.Leave(testSession("x", "never-joined"))

	assert.Equal(t, 0, reg.RoomCount())
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sess := testSession(fmt.Sprintf("ch-%d", n), fmt.Sprintf("room-%d", n%5))
			for j := 0; j < 100; j++ {
				reg.Join(sess, newFakeChannel(sess.ChannelID))
				reg.MembersOf(sess.RoomID)
				reg.Leave(sess)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, reg.RoomCount())
}
