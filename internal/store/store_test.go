package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"registration-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore connects to the database named by TEST_DATABASE_URL. Without it
// the integration tests are skipped; the migration in migrations/ must have
// been applied.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMarkOrderCompletedSingleWinner(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	orderID := fmt.Sprintf("order_it_%d", time.Now().UnixNano())
	require.NoError(t, s.CreateOrder(ctx, &models.Order{
		OrderID:     orderID,
		Status:      models.OrderStatusPending,
		TotalAmount: 150,
		Currency:    "INR",
		BuyerEmail:  "it@example.com",
		Environment: "sandbox",
	}))

	const n = 10
	wins := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.MarkOrderCompleted(ctx, orderID)
			assert.NoError(t, err)
			wins[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	order, err := s.GetOrderByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.True(t, order.CompletedAt.Valid)

	// A later failure signal must not overwrite the terminal state.
	marked, err := s.MarkOrderFailed(ctx, orderID, "late failure")
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestUpsertAttendeeMergesWithoutBlanking(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	email := fmt.Sprintf("it_%d@example.com", time.Now().UnixNano())

	first := &models.Attendee{Email: email, Name: "First Name", UniversityName: "NIT Warangal"}
	require.NoError(t, s.UpsertAttendee(ctx, first))

	second := &models.Attendee{Email: email, Name: "Second Name", Validated: true}
	require.NoError(t, s.UpsertAttendee(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Second Name", second.Name)
	assert.Equal(t, "NIT Warangal", second.UniversityName)
	assert.True(t, second.Validated)

	// Validated never flips back.
	third := &models.Attendee{Email: email}
	require.NoError(t, s.UpsertAttendee(ctx, third))
	assert.True(t, third.Validated)

	require.NoError(t, s.AddEntitlements(ctx, first.ID, []string{"Kabaddi", "Kabaddi", "Chess (Boys)"}))
	ents, err := s.GetEntitlements(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Kabaddi", "Chess (Boys)"}, ents)
}
