package seed

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/revelly2/smart-store-front/domain"
)

// Account is a user created at startup when missing.
type Account struct {
	Username string
	Name     string
	Password string
	Role     domain.Role
}

// DefaultAccounts mirrors the two demo logins of the consoles.
func DefaultAccounts(adminPassword, cashierPassword string) []Account {
	return []Account{
		{Username: "admin", Name: "Administrator", Password: adminPassword, Role: domain.RoleAdmin},
		{Username: "cashier", Name: "Cashier User", Password: cashierPassword, Role: domain.RoleCashier},
	}
}

// EnsureUsers inserts any account whose username is not taken yet.
func EnsureUsers(db *sqlx.DB, accounts []Account, logger *zap.Logger) error {
	for _, acc := range accounts {
		var exists bool
		if err := db.Get(&exists, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, acc.Username); err != nil {
			return fmt.Errorf("check user %s: %w", acc.Username, err)
		}
		if exists {
			continue
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(acc.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", acc.Username, err)
		}
		if _, err := db.Exec(`INSERT INTO users (username, name, password, role, created_at) VALUES (?, ?, ?, ?, ?)`,
			acc.Username, acc.Name, string(hashed), acc.Role, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert user %s: %w", acc.Username, err)
		}
		logger.Info("created account", zap.String("username", acc.Username), zap.String("role", string(acc.Role)))
	}
	return nil
}
