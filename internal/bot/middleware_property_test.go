// Property-based tests for middleware functions.
package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"points-ledger-bot/internal/model"
	"points-ledger-bot/internal/pkg/lock"
)

// fakeContext implements the parts of tele.Context the middleware touches.
type fakeContext struct {
	tele.Context
	sender   *tele.User
	callback *tele.Callback

	mu        sync.Mutex
	sent      []any
	responded int
}

func (c *fakeContext) Sender() *tele.User { return c.sender }
func (c *fakeContext) Chat() *tele.Chat { return nil }
func (c *fakeContext) Text() string { return "" }
func (c *fakeContext) Callback() *tele.Callback { return c.callback }
func (c *fakeContext) Respond(...*tele.CallbackResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responded++
	return nil
}
func (c *fakeContext) Send(what any, _ ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, what)
	return nil
}

type fakeRegistrar struct {
	mu    sync.Mutex
	calls map[int64]int
	err   error
}

func (r *fakeRegistrar) RegisterUser(_ context.Context, userID int64, username string, _ *string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[int64]int)
	}
	r.calls[userID]++
	if r.err != nil {
		return nil, r.err
	}
	return &model.User{UserID: userID, Username: username}, nil
}

func chain(h tele.HandlerFunc, mws ...tele.MiddlewareFunc) tele.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// TestInFlightMiddlewareProperty checks that while a handler runs for a user,
// further updates from that user are dropped and other users are unaffected.
func TestInFlightMiddlewareProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		otherID := rapid.Int64Range(1, 1000000000).Filter(func(v int64) bool { return v != userID }).Draw(t, "otherID")
		extra := rapid.IntRange(1, 10).Draw(t, "extra")
		asCallback := rapid.Bool().Draw(t, "asCallback")

		ul := lock.NewUserLock()
		var innerCalls atomic.Int32

		release := make(chan struct{})
		entered := make(chan struct{})
		blocking := chain(func(c tele.Context) error {
			innerCalls.Add(1)
			close(entered)
			<-release
			return nil
		}, InFlightMiddleware(ul))

		done := make(chan error, 1)
		go func() {
			done <- blocking(&fakeContext{sender: &tele.User{ID: userID}})
		}()
		<-entered

		counting := chain(func(c tele.Context) error {
			innerCalls.Add(1)
			return nil
		}, InFlightMiddleware(ul))

		for i := 0; i < extra; i++ {
			c := &fakeContext{sender: &tele.User{ID: userID}}
			if asCallback {
				c.callback = &tele.Callback{Data: "daily_claim"}
			}
			if err := counting(c); err != nil {
				t.Fatalf("dropped update returned error: %v", err)
			}
			if asCallback && (c.responded != 1 || len(c.sent) != 0) {
				t.Fatalf("dropped callback should be answered once, got %d answers and %d messages", c.responded, len(c.sent))
			}
			if !asCallback && len(c.sent) != 1 {
				t.Fatalf("dropped message should get one wait reply, got %d", len(c.sent))
			}
		}

		if err := counting(&fakeContext{sender: &tele.User{ID: otherID}}); err != nil {
			t.Fatalf("other user: %v", err)
		}

		close(release)
		if err := <-done; err != nil {
			t.Fatalf("blocking handler: %v", err)
		}

		if got := innerCalls.Load(); got != 2 {
			t.Fatalf("expected 2 handler calls (held user + other user), got %d", got)
		}
		if ul.Len() != 0 {
			t.Fatalf("guard not released, %d users held", ul.Len())
		}
	})
}

func TestRegisterMiddleware(t *testing.T) {
	reg := &fakeRegistrar{}
	var called bool
	h := chain(func(c tele.Context) error {
		called = true
		return nil
	}, RegisterMiddleware(reg))

	require.NoError(t, h(&fakeContext{sender: &tele.User{ID: 42, Username: "alice"}}))
	assert.True(t, called)
	assert.Equal(t, 1, reg.calls[42])

	// Bots and anonymous updates are ignored.
	called = false
	require.NoError(t, h(&fakeContext{sender: &tele.User{ID: 43, IsBot: true}}))
	require.NoError(t, h(&fakeContext{}))
	assert.False(t, called)
	assert.Zero(t, reg.calls[43])
}

func TestRegisterMiddleware_FailureStopsHandler(t *testing.T) {
	reg := &fakeRegistrar{err: errors.New("db down")}
	var called bool
	h := chain(func(c tele.Context) error {
		called = true
		return nil
	}, RegisterMiddleware(reg))

	c := &fakeContext{sender: &tele.User{ID: 42}}
	require.NoError(t, h(c))
	assert.False(t, called)
	require.Len(t, c.sent, 1)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := chain(func(c tele.Context) error {
		panic("boom")
	}, RecoveryMiddleware(), LoggingMiddleware())

	c := &fakeContext{sender: &tele.User{ID: 42}}
	assert.NotPanics(t, func() {
		_ = h(c)
	})
	require.Len(t, c.sent, 1)
}
