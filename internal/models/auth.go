package models

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims represents the JWT payload issued by the identity provider.
type IdentityClaims struct {
	UserID           string   `json:"user_id"`
	Role             UserRole `json:"role"`
	Email            string   `json:"email,omitempty"`
	AssignedSubjects []string `json:"assigned_subjects,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into the principal used by the ledgers.
func (c *IdentityClaims) Identity() Identity {
	return Identity{ActorID: c.UserID, Role: c.Role, AssignedSubjects: c.AssignedSubjects}
}
