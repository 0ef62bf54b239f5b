package domain

import (
	"errors"
	"testing"
)

func TestAuthorizeOrder(t *testing.T) {
	own := &Customer{ID: 1, UserID: 10}
	ownOrder := &Order{ID: 100, CustomerID: 1}
	foreignOrder := &Order{ID: 200, CustomerID: 2}

	staff := Actor{UserID: 99, IsStaff: true}
	customer := Actor{UserID: 10}
	anonymous := Actor{}

	tests := []struct {
		name   string
		actor  Actor
		action OrderAction
		order  *Order
		own    *Customer
		want   error
	}{
		{name: "anonymous list", actor: anonymous, action: OrderActionList, want: ErrUnauthenticated},
		{name: "anonymous create", actor: anonymous, action: OrderActionCreate, want: ErrUnauthenticated},
		{name: "staff list", actor: staff, action: OrderActionList},
		{name: "staff view foreign", actor: staff, action: OrderActionView, order: foreignOrder},
		{name: "staff update", actor: staff, action: OrderActionUpdate, order: foreignOrder},
		{name: "staff delete", actor: staff, action: OrderActionDelete},
		{name: "customer list", actor: customer, action: OrderActionList, own: own},
		{name: "customer create", actor: customer, action: OrderActionCreate},
		{name: "customer view own", actor: customer, action: OrderActionView, order: ownOrder, own: own},
		{name: "customer view foreign", actor: customer, action: OrderActionView, order: foreignOrder, own: own, want: ErrForbidden},
		{name: "customer without profile view", actor: customer, action: OrderActionView, order: ownOrder, want: ErrForbidden},
		{name: "customer update own", actor: customer, action: OrderActionUpdate, order: ownOrder, own: own, want: ErrForbidden},
		{name: "customer delete own", actor: customer, action: OrderActionDelete, order: ownOrder, own: own, want: ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AuthorizeOrder(tt.actor, tt.action, tt.order, tt.own)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected access, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRequireStaff(t *testing.T) {
	if err := RequireStaff(Actor{}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if err := RequireStaff(Actor{UserID: 1}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := RequireStaff(Actor{UserID: 1, IsStaff: true}); err != nil {
		t.Fatalf("expected access, got %v", err)
	}
}

func TestCanViewCustomer(t *testing.T) {
	c := Customer{ID: 5, UserID: 10}

	if err := CanViewCustomer(Actor{UserID: 10}, c); err != nil {
		t.Fatalf("owner must see own profile: %v", err)
	}
	if err := CanViewCustomer(Actor{UserID: 11}, c); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := CanViewCustomer(Actor{UserID: 11, IsStaff: true}, c); err != nil {
		t.Fatalf("staff must see any profile: %v", err)
	}
}
