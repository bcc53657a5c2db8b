package plugin

import (
	"fmt"
	"strings"
)

// DuplicateIDError reports registration of an id that already exists.
// Registry-level contract violation; always propagated unmodified.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("plugin %s already registered", e.ID)
}

// NotFoundError reports a mutation against an unknown plugin id
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("plugin %s not found", e.ID)
}

// ValidationError reports a malformed manifest
type ValidationError struct {
	Source  string
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %s", e.Source, strings.Join(e.Reasons, "; "))
}

// SecurityError reports a failed audit; the plugin is never registered
type SecurityError struct {
	ID       string
	Findings []Finding
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("plugin %s failed security audit (%d findings)", e.ID, len(e.Findings))
}

// DependencyError reports a missing or version-incompatible dependency
type DependencyError struct {
	ID         string
	Dependency string
	Constraint string
	Actual     string // empty when the dependency is missing entirely
}

func (e *DependencyError) Error() string {
	if e.Actual == "" {
		return fmt.Sprintf("plugin %s: missing dependency %s", e.ID, e.Dependency)
	}
	return fmt.Sprintf("plugin %s: dependency %s@%s does not satisfy %s",
		e.ID, e.Dependency, e.Actual, e.Constraint)
}

// CycleError reports a circular dependency; every member of the cycle fails
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}
