// Package auth carries the identity of the caller into the services.
package auth

import "coursemarket/models"

// Principal is the authenticated actor of a request.
type Principal struct {
	ID   uint
	Role string
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// Owns reports whether the principal is the given user.
func (p Principal) Owns(userID uint) bool {
	return p.ID != 0 && p.ID == userID
}
