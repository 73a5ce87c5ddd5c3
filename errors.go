package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRole is returned by AddRole when the role is not in the catalog.
	ErrUnknownRole       = errors.New("unknown role")
	ErrInvalidPermission = errors.New("invalid permission")
	ErrInvalidRole       = errors.New("invalid role")
)

// UnknownRoleError carries the offending role id. It matches ErrUnknownRole.
type UnknownRoleError struct {
	Identity string
	RoleID   string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q (identity %s)", e.RoleID, e.Identity)
}

func (e *UnknownRoleError) Unwrap() error { return ErrUnknownRole }
