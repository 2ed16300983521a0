package auth

import (
	"errors"

	"github.com/npezzotti/campus-connect/internal/types"
)

var ErrForbidden = errors.New("forbidden")

// Authorize reports whether id holds required. Admin satisfies every role.
func Authorize(id Identity, required types.Role) error {
	switch {
	case id.Role == types.RoleAdmin:
		return nil
	case id.Role == required && required == types.RoleUser:
		return nil
	default:
		return ErrForbidden
	}
}
