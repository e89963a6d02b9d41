package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/session"
)

var (
	admin   = &domain.Identity{ID: 1, Username: "admin", Role: domain.RoleAdmin, Name: "Administrator"}
	cashier = &domain.Identity{ID: 2, Username: "cashier", Role: domain.RoleCashier, Name: "Cashier User"}
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		state    session.State
		required domain.Role
		path     string
		want     Decision
	}{
		{
			name:  "loading renders placeholder",
			state: session.State{Loading: true},
			path:  "/admin", required: domain.RoleAdmin,
			want: Decision{Outcome: Loading},
		},
		{
			name:  "anonymous goes to login keeping location",
			state: session.State{},
			path:  "/cashier/cart", required: domain.RoleCashier,
			want: Decision{Outcome: Redirect, Location: "/login?from=%2Fcashier%2Fcart", From: "/cashier/cart"},
		},
		{
			name:  "cashier on admin view goes to cashier landing",
			state: session.State{Identity: cashier},
			path:  "/admin", required: domain.RoleAdmin,
			want: Decision{Outcome: Redirect, Location: "/cashier"},
		},
		{
			name:  "admin on cashier view goes to admin landing",
			state: session.State{Identity: admin},
			path:  "/cashier", required: domain.RoleCashier,
			want: Decision{Outcome: Redirect, Location: "/admin"},
		},
		{
			name:  "matching role renders",
			state: session.State{Identity: admin},
			path:  "/admin/sales", required: domain.RoleAdmin,
			want: Decision{Outcome: Render},
		},
		{
			name:  "no role required renders for anyone signed in",
			state: session.State{Identity: cashier},
			path:  "/anything",
			want:  Decision{Outcome: Render},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.state, tt.required, tt.path))
		})
	}
}

func TestWrongRoleNeverRedirectsToLogin(t *testing.T) {
	d := Decide(session.State{Identity: cashier}, domain.RoleAdmin, "/admin/products")
	assert.Equal(t, Redirect, d.Outcome)
	assert.Equal(t, "/cashier", d.Location)
	assert.False(t, d.ToLogin())
}

func TestResolve(t *testing.T) {
	assert.Equal(t, Decision{Outcome: Redirect, Location: "/login"}, Resolve(session.State{}, "/"))
	assert.Equal(t, Decision{Outcome: Render}, Resolve(session.State{}, "/login"))
	assert.Equal(t, Decision{Outcome: NotFound}, Resolve(session.State{Identity: admin}, "/reports"))
	assert.Equal(t, Decision{Outcome: Render}, Resolve(session.State{Identity: cashier}, "/cashier/cart/"))
	assert.True(t, Resolve(session.State{}, "/admin/products").ToLogin())
}

func TestLoginReturn(t *testing.T) {
	assert.Equal(t, "/cashier/cart", LoginReturn(*cashier, "/cashier/cart"))
	assert.Equal(t, "/cashier", LoginReturn(*cashier, "/admin/sales"))
	assert.Equal(t, "/admin", LoginReturn(*admin, ""))
	assert.Equal(t, "/admin", LoginReturn(*admin, "/login"))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "redirect", Redirect.String())
	assert.Equal(t, "not_found", NotFound.String())
}
