package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemorySendReceiveDelete(t *testing.T) {
	q := NewMemory(time.Minute, 5)
	ctx := context.Background()

	id, err := q.Send(ctx, []byte("hello"), Attributes{AttrOrderID: "o1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs, err := q.Receive(ctx, 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, id, msgs[0].ID)
	require.Equal(t, "hello", string(msgs[0].Body))
	require.Equal(t, "o1", msgs[0].Attributes[AttrOrderID])
	require.NotEmpty(t, msgs[0].ReceiptHandle)

	require.NoError(t, q.Delete(ctx, msgs[0].ReceiptHandle))
	require.Equal(t, 0, q.Depth())
}

func TestMemoryReceiveBatchLimit(t *testing.T) {
	q := NewMemory(time.Minute, 5)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := q.Send(ctx, []byte("m"), nil)
		require.NoError(t, err)
	}

	msgs, err := q.Receive(ctx, 3, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

func TestMemoryInvisibleWhileInFlight(t *testing.T) {
	q := NewMemory(time.Minute, 5)
	ctx := context.Background()

	_, err := q.Send(ctx, []byte("m"), nil)
	require.NoError(t, err)

	first, err := q.Receive(ctx, 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Still within the visibility timeout: nothing to receive.
	second, err := q.Receive(ctx, 10, 20*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestMemoryVisibilityTimeoutRedelivers(t *testing.T) {
	q := NewMemory(20*time.Millisecond, 5)
	ctx := context.Background()

	_, err := q.Send(ctx, []byte("m"), nil)
	require.NoError(t, err)

	first, err := q.Receive(ctx, 1, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Not deleted: it must come back after the timeout.
	second, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID)
	require.NotEqual(t, first[0].ReceiptHandle, second[0].ReceiptHandle,
		"a receipt handle is only valid for its own delivery attempt")

	// The old handle is dead.
	require.ErrorIs(t, q.Delete(ctx, first[0].ReceiptHandle), ErrUnknownReceipt)
	require.NoError(t, q.Delete(ctx, second[0].ReceiptHandle))
}

func TestMemoryDeadLettersAfterDeliveryLimit(t *testing.T) {
	q := NewMemory(10*time.Millisecond, 2)
	ctx := context.Background()

	id, err := q.Send(ctx, []byte("m"), nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		msgs, err := q.Receive(ctx, 1, time.Second)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		// Never delete; wait for the visibility timeout each round.
	}

	// After the second expiry the message is dead-lettered, not redelivered.
	require.Eventually(t, func() bool {
		return len(q.DeadLetters()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, id, q.DeadLetters()[0].ID)

	msgs, err := q.Receive(ctx, 1, 50*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestMemoryLongPollWakesOnSend(t *testing.T) {
	q := NewMemory(time.Minute, 5)
	ctx := context.Background()

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = q.Send(ctx, []byte("late"), nil)
	}()

	start := time.Now()
	msgs, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Less(t, time.Since(start), time.Second, "receive should return as soon as a message arrives")
}

func TestMemoryDeleteUnknownReceipt(t *testing.T) {
	q := NewMemory(time.Minute, 5)
	require.ErrorIs(t, q.Delete(context.Background(), "nope"), ErrUnknownReceipt)
}
