package notify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
)

func TestCompileCELFilter(t *testing.T) {
	msg, err := NewOrderUpdateMessage(domain.Order{
		ID:         "order-1",
		Status:     domain.OrderStatusPickedUp,
		TotalMinor: 2500,
	})
	require.NoError(t, err)

	cases := []struct {
		name string
		expr string
		want bool
	}{
		{name: "status match", expr: `json.orderUpdates.status == "PickedUp"`, want: true},
		{name: "status mismatch", expr: `json.orderUpdates.status == "Delivered"`, want: false},
		{name: "numeric field", expr: `json.orderUpdates.totalMinor > 2000.0`, want: true},
		{name: "key and topic", expr: `key == "order-1" && topic == "orderUpdates"`, want: true},
		{name: "missing field evaluates to false", expr: `json.orderUpdates.driverId == "d1"`, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			filter, err := CompileCELFilter(tc.expr)
			require.NoError(t, err)
			require.NotNil(t, filter)
			require.Equal(t, tc.want, filter.Match(msg))
		})
	}
}

func TestCompileCELFilter_Empty(t *testing.T) {
	filter, err := CompileCELFilter("   ")
	require.NoError(t, err)
	require.Nil(t, filter)
}

func TestCompileCELFilter_Invalid(t *testing.T) {
	_, err := CompileCELFilter(`key ==`)
	require.Error(t, err)

	_, err = CompileCELFilter(`key + "x"`)
	require.Error(t, err)
}

func TestAllOf(t *testing.T) {
	msg := Message{Topic: TopicPendingOrders, Key: "owner-1"}

	require.True(t, AllOf().Match(msg))
	require.True(t, AllOf(nil, KeyFilter("owner-1")).Match(msg))
	require.False(t, AllOf(KeyFilter("owner-1"), FilterFunc(func(Message) bool { return false })).Match(msg))
}
