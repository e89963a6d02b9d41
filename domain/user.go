package domain

// Role is the permission level of an authenticated user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCashier
}

// Identity is the authenticated user as seen by the consoles.
type Identity struct {
	ID       int64  `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Role     Role   `json:"role" db:"role"`
	Name     string `json:"name" db:"name"`
}

// Valid reports whether the identity carries the fields a session needs.
func (i Identity) Valid() bool {
	return i.ID > 0 && i.Username != "" && i.Role.Valid()
}

type LoginResult struct {
	User  Identity `json:"user"`
	Token string   `json:"token"`
}
