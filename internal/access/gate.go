// Package access decides whether a protected view may render for the current
// session, and where to send the user when it may not.
package access

import (
	"net/url"
	"strings"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/session"
)

const LoginPath = "/login"

type Outcome int

const (
	// Loading means the session is not restored yet; show a neutral placeholder.
	Loading Outcome = iota
	Render
	Redirect
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Loading:
		return "loading"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Decision is the gate's verdict. Location is set for Redirect; From carries
// the originally requested path when the redirect goes to the login view.
type Decision struct {
	Outcome  Outcome
	Location string
	From     string
}

// ToLogin reports whether the decision sends the user to sign in.
func (d Decision) ToLogin() bool {
	return d.Outcome == Redirect && d.From != ""
}

// LandingFor is the default view of a role after authentication.
func LandingFor(role domain.Role) string {
	if role == domain.RoleAdmin {
		return "/admin"
	}
	return "/cashier"
}

// Decide gates a view that requires role (empty means any signed-in user).
func Decide(state session.State, required domain.Role, requested string) Decision {
	if state.Loading {
		return Decision{Outcome: Loading}
	}
	if state.Identity == nil {
		return Decision{
			Outcome:  Redirect,
			Location: LoginPath + "?from=" + url.QueryEscape(requested),
			From:     requested,
		}
	}
	if required != "" && state.Identity.Role != required {
		return Decision{Outcome: Redirect, Location: LandingFor(state.Identity.Role)}
	}
	return Decision{Outcome: Render}
}

type route struct {
	public   bool
	required domain.Role
}

var routes = map[string]route{
	LoginPath:         {public: true},
	"/admin":          {required: domain.RoleAdmin},
	"/admin/products": {required: domain.RoleAdmin},
	"/admin/sales":    {required: domain.RoleAdmin},
	"/cashier":        {required: domain.RoleCashier},
	"/cashier/cart":   {required: domain.RoleCashier},
}

// Resolve applies the console route table to path.
func Resolve(state session.State, path string) Decision {
	clean := strings.TrimSuffix(path, "/")
	if clean == "" {
		return Decision{Outcome: Redirect, Location: LoginPath}
	}
	r, ok := routes[clean]
	if !ok {
		return Decision{Outcome: NotFound}
	}
	if r.public {
		return Decision{Outcome: Render}
	}
	return Decide(state, r.required, clean)
}

// LoginReturn is where to go after signing in: the preserved location when it
// belongs to the user's role, otherwise the role's landing view.
func LoginReturn(identity domain.Identity, from string) string {
	if from == "" {
		return LandingFor(identity.Role)
	}
	d := Resolve(session.State{Identity: &identity}, from)
	if d.Outcome == Render && from != LoginPath {
		return strings.TrimSuffix(from, "/")
	}
	return LandingFor(identity.Role)
}
