package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateItems(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	tests := []struct {
		name  string
		items []OrderItem
		want  error
	}{
		{name: "empty", items: nil, want: ErrEmptyOrder},
		{name: "zero quantity", items: []OrderItem{{ProductID: a, Quantity: 0}}, want: ErrInvalidQuantity},
		{name: "negative quantity", items: []OrderItem{{ProductID: a, Quantity: -1}}, want: ErrInvalidQuantity},
		{name: "duplicate product", items: []OrderItem{{ProductID: a, Quantity: 1}, {ProductID: a, Quantity: 1}}, want: ErrDuplicateLineItem},
		{name: "ok", items: []OrderItem{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateItems(tt.items)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNewOrderCopiesItems(t *testing.T) {
	items := []OrderItem{{ProductID: uuid.New(), Quantity: 2}}
	o, err := NewOrder(items)
	require.NoError(t, err)

	items[0].Quantity = 99
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, StatusPending, o.Status)
	assert.NotEqual(t, uuid.Nil, o.ID)
}

func TestItemsInLockOrder(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	mid := uuid.MustParse("7f000000-0000-0000-0000-000000000000")
	high := uuid.MustParse("ff000000-0000-0000-0000-000000000000")

	forward, err := NewOrder([]OrderItem{{ProductID: high, Quantity: 1}, {ProductID: low, Quantity: 2}, {ProductID: mid, Quantity: 3}})
	require.NoError(t, err)
	reverse, err := NewOrder([]OrderItem{{ProductID: mid, Quantity: 3}, {ProductID: low, Quantity: 2}, {ProductID: high, Quantity: 1}})
	require.NoError(t, err)

	want := []OrderItem{{ProductID: low, Quantity: 2}, {ProductID: mid, Quantity: 3}, {ProductID: high, Quantity: 1}}
	assert.Equal(t, want, forward.ItemsInLockOrder())
	assert.Equal(t, want, reverse.ItemsInLockOrder())
	assert.Equal(t, high, forward.Items[0].ProductID, "request order is preserved")
}

func TestStateMachine(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCanceled, true},
		{StatusPaid, StatusCanceled, false},
		{StatusPaid, StatusPending, false},
		{StatusCanceled, StatusPaid, false},
		{StatusCanceled, StatusPending, false},
		{StatusPending, StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestMarkPaid(t *testing.T) {
	o := Order{Status: StatusPending}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, o.MarkPaid(at))
	assert.Equal(t, StatusPaid, o.Status)
	require.NotNil(t, o.PaidAt)
	assert.Equal(t, at, *o.PaidAt)

	assert.ErrorIs(t, o.MarkPaid(at), ErrInvalidStateTransition)
	assert.ErrorIs(t, o.Cancel(), ErrInvalidStateTransition)
}

func TestCancelTwice(t *testing.T) {
	o := Order{Status: StatusPending}
	require.NoError(t, o.Cancel())
	assert.ErrorIs(t, o.Cancel(), ErrInvalidStateTransition)
	assert.Nil(t, o.PaidAt)
}

func TestListFilterNormalize(t *testing.T) {
	f := ListFilter{Limit: 0, Offset: -3}.Normalize()
	assert.Equal(t, DefaultListLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)

	assert.Equal(t, MaxListLimit, ListFilter{Limit: 10_000}.Normalize().Limit)
}
