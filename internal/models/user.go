package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleCoordinator UserRole = "COORDINATOR"
	RoleProfessor   UserRole = "PROFESSOR"
	RoleStudent     UserRole = "STUDENT"
)

// CanRecord reports whether the role may write grades or attendance at all.
func (r UserRole) CanRecord() bool {
	return r == RoleProfessor || r == RoleCoordinator
}

// Identity is the authenticated principal a ledger call acts on behalf of.
// AssignedSubjects comes from the token and can only narrow what the
// subject_assignments table allows; a nil slice means "not asserted".
type Identity struct {
	ActorID          string   `json:"actor_id"`
	Role             UserRole `json:"role"`
	AssignedSubjects []string `json:"assigned_subjects,omitempty"`
}

// AssertsSubject reports whether the identity's token scope admits subjectID.
func (i Identity) AssertsSubject(subjectID string) bool {
	if i.AssignedSubjects == nil {
		return true
	}
	for _, id := range i.AssignedSubjects {
		if id == subjectID {
			return true
		}
	}
	return false
}
