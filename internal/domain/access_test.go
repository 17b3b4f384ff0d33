package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
)

func TestCanSetStatus(t *testing.T) {
	allStatuses := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusCooking,
		domain.OrderStatusCooked,
		domain.OrderStatusPickedUp,
		domain.OrderStatusDelivered,
	}
	allowed := map[domain.Role][]domain.OrderStatus{
		domain.RoleClient:   nil,
		domain.RoleOwner:    {domain.OrderStatusCooking, domain.OrderStatusCooked},
		domain.RoleDelivery: {domain.OrderStatusPickedUp, domain.OrderStatusDelivered},
	}

	for role, permitted := range allowed {
		for _, status := range allStatuses {
			want := false
			for _, p := range permitted {
				if p == status {
					want = true
				}
			}
			if got := domain.CanSetStatus(role, status); got != want {
				t.Errorf("CanSetStatus(%s, %s) = %v, want %v", role, status, got, want)
			}
		}
	}

	if domain.CanSetStatus("Admin", domain.OrderStatusCooked) {
		t.Error("unknown role must not set any status")
	}
}

func TestAllowedStatuses(t *testing.T) {
	owner := domain.AllowedStatuses(domain.RoleOwner)
	if len(owner) != 2 || owner[0] != domain.OrderStatusCooking || owner[1] != domain.OrderStatusCooked {
		t.Fatalf("unexpected owner statuses: %v", owner)
	}
	if client := domain.AllowedStatuses(domain.RoleClient); len(client) != 0 {
		t.Fatalf("client must not set statuses, got %v", client)
	}
}

func TestCanSeeOrder(t *testing.T) {
	order := domain.Order{ID: "o1", CustomerID: "client-1", DriverID: "driver-1", RestaurantID: "r1"}

	cases := []struct {
		name    string
		user    domain.User
		ownerID string
		want    bool
	}{
		{name: "customer", user: domain.User{ID: "client-1", Role: domain.RoleClient}, ownerID: "owner-1", want: true},
		{name: "other client", user: domain.User{ID: "client-2", Role: domain.RoleClient}, ownerID: "owner-1", want: false},
		{name: "assigned driver", user: domain.User{ID: "driver-1", Role: domain.RoleDelivery}, ownerID: "owner-1", want: true},
		{name: "other driver", user: domain.User{ID: "driver-2", Role: domain.RoleDelivery}, ownerID: "owner-1", want: false},
		{name: "restaurant owner", user: domain.User{ID: "owner-1", Role: domain.RoleOwner}, ownerID: "owner-1", want: true},
		{name: "foreign owner", user: domain.User{ID: "owner-2", Role: domain.RoleOwner}, ownerID: "owner-1", want: false},
		{name: "driver with customer id", user: domain.User{ID: "client-1", Role: domain.RoleDelivery}, ownerID: "owner-1", want: false},
		{name: "client owning restaurant", user: domain.User{ID: "owner-1", Role: domain.RoleClient}, ownerID: "owner-1", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.CanSeeOrder(tc.user, order, tc.ownerID); got != tc.want {
				t.Fatalf("CanSeeOrder() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanSeeOrder_UnassignedDriver(t *testing.T) {
	order := domain.Order{ID: "o1", CustomerID: "client-1"}
	if domain.CanSeeOrder(domain.User{ID: "", Role: domain.RoleDelivery}, order, "owner-1") {
		t.Fatal("order without driver must not be visible to delivery users")
	}
}
