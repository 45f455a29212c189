package enums

import (
	"fmt"
	"strings"
)

// ReviewerRole is the warehouse role a reviewer acts under.
type ReviewerRole string

const (
	RoleReviewer   ReviewerRole = "reviewer"
	RoleSupervisor ReviewerRole = "supervisor"
	RoleOperator   ReviewerRole = "operator"
)

func (r ReviewerRole) String() string {
	return string(r)
}

func (r ReviewerRole) IsValid() bool {
	switch r {
	case RoleReviewer, RoleSupervisor, RoleOperator:
		return true
	}
	return false
}

func ParseReviewerRole(value string) (ReviewerRole, error) {
	role := ReviewerRole(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid reviewer role %q", value)
	}
	return role, nil
}
