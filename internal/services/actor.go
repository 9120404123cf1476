package services

import "github.com/dailydues/backend/internal/models"

// Actor is the authenticated caller of an operation. The zero value is anonymous.
type Actor struct {
	UserID   uint
	Username string
	Role     string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

func requireAuth(a Actor) error {
	if a.UserID == 0 {
		return ErrNotAuthenticated
	}
	return nil
}

func requireAdmin(a Actor) error {
	if err := requireAuth(a); err != nil {
		return err
	}
	if !a.IsAdmin() {
		return ErrAdminRequired
	}
	return nil
}
