package session

import (
	"context"
	"fmt"

	"connected/pkg/types"
)

// RosterLookup answers roster membership questions by email
type RosterLookup interface {
	IsTeacher(ctx context.Context, email string) (bool, error)
	IsStudent(ctx context.Context, email string) (bool, error)
}

// ResolveRole is the single role policy: metadata role first, then roster membership
// FUNCTIONAL DISCOVERY: an unauthenticated session never has a role, and a session whose
// metadata lacks a role is resolved from the roster on every call
func ResolveRole(ctx context.Context, session types.Session, roster RosterLookup) (types.Role, error) {
	auth, ok := session.(types.Authenticated)
	if !ok {
		return types.RoleNone, nil
	}
	if auth.Role.Valid() {
		return auth.Role, nil
	}
	return RosterRole(ctx, auth.Email, roster)
}

// RosterRole derives a role from roster membership alone, teacher table first
func RosterRole(ctx context.Context, email string, roster RosterLookup) (types.Role, error) {
	isTeacher, err := roster.IsTeacher(ctx, email)
	if err != nil {
		return types.RoleNone, fmt.Errorf("teacher lookup failed: %w", err)
	}
	if isTeacher {
		return types.RoleTeacher, nil
	}

	isStudent, err := roster.IsStudent(ctx, email)
	if err != nil {
		return types.RoleNone, fmt.Errorf("student lookup failed: %w", err)
	}
	if isStudent {
		return types.RoleStudent, nil
	}

	return types.RoleNone, nil
}

// InferDevRole picks the dev-mode role: explicit if given, else by email
func InferDevRole(email string, explicit types.Role) (types.Role, error) {
	if explicit != types.RoleNone {
		if !explicit.Valid() {
			return types.RoleNone, ErrInvalidRole
		}
		return explicit, nil
	}
	if containsFold(email, "teacher") {
		return types.RoleTeacher, nil
	}
	return types.RoleStudent, nil
}
