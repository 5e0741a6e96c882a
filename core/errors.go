package core

// These errors are user errors, not internal errors.  They propagate
// out of whatever engine operation the caller invoked.  The one
// exception is Stopped, which is control flow, not failure.

import (
	"errors"
	"fmt"
)

// Stopped is the distinguished signal raised by the "exit" primitive.
//
// Stopped is not a failure.  It unwinds to the nearest boundary that
// is prepared for it -- behaviour dispatch, a "run" invocation, or a
// derivation pipeline -- and is swallowed there.  Nothing should ever
// log a Stopped as an error.
type Stopped struct{}

func (s Stopped) Error() string {
	return "stopped"
}

// IsStopped reports whether the given error is (or wraps) a Stopped.
func IsStopped(err error) bool {
	var s Stopped
	return errors.As(err, &s)
}

// ValidationError occurs when a value offered to Property.SetValue
// doesn't satisfy the property's type or constraints.
type ValidationError struct {
	Property string
	Value    interface{}
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf(`invalid value %#v for property "%s": %s`, e.Value, e.Property, e.Reason)
}

// Unmapped occurs when a property with no attached backing store is
// read or written.  Per contract this is an error, not a no-op.
type Unmapped struct {
	Concept  string
	Property string
	Op       string
}

func (e *Unmapped) Error() string {
	return `no callbacks available to ` + e.Op + ` property "` + e.Property +
		`" of concept "` + e.Concept + `"`
}

// UnknownProperty occurs when a property lookup finds nothing at any
// of the three precedence levels.
type UnknownProperty struct {
	Concept string
	Name    string
}

func (e *UnknownProperty) Error() string {
	if e.Concept == "" {
		return `property "` + e.Name + `" not found`
	}
	return `property "` + e.Name + `" not found on concept "` + e.Concept + `"`
}

// UnknownAction occurs when an action name can't be resolved.
type UnknownAction struct {
	Concept string
	Name    string
}

func (e *UnknownAction) Error() string {
	if e.Concept == "" {
		return `action "` + e.Name + `" not found`
	}
	return `action "` + e.Name + `" not found on concept "` + e.Concept + `"`
}

// UnknownTrigger occurs when a trigger name or kind can't be resolved.
type UnknownTrigger struct {
	Concept string
	Name    string
}

func (e *UnknownTrigger) Error() string {
	return `trigger "` + e.Name + `" not found on concept "` + e.Concept + `"`
}

// TriggerExists occurs when a trigger is added under a name that is
// already taken and the caller didn't ask for a swap.
type TriggerExists struct {
	Concept string
	Name    string
}

func (e *TriggerExists) Error() string {
	return `trigger "` + e.Name + `" already present on concept "` + e.Concept + `"`
}

// UnknownConcept occurs when a type name isn't registered.
type UnknownConcept struct {
	Name string
}

func (e *UnknownConcept) Error() string {
	return `concept "` + e.Name + `" not registered`
}

// IDConflict occurs when an id is already registered to a concept of
// a different type.
type IDConflict struct {
	ID         string
	Registered string
	Requested  string
}

func (e *IDConflict) Error() string {
	return `id "` + e.ID + `" already belongs to concept "` + e.Registered +
		`", not "` + e.Requested + `"`
}

// BadOptions occurs when an action or trigger specification can't be
// normalized into its canonical form.
type BadOptions struct {
	Kind   string
	Reason string
}

func (e *BadOptions) Error() string {
	return `bad options for "` + e.Kind + `": ` + e.Reason
}

// CloneCycle occurs when a deep clone would have to clone an instance
// that is itself still being cloned.
type CloneCycle struct {
	ID string
}

func (e *CloneCycle) Error() string {
	return `deep clone of "` + e.ID + `" cycles back to itself`
}

// DerivedReadOnly occurs when a derived property is written directly.
// Derived values change only by recomputation.
type DerivedReadOnly struct {
	Concept  string
	Property string
}

func (e *DerivedReadOnly) Error() string {
	return `derived property "` + e.Property + `" of concept "` + e.Concept +
		`" cannot be set directly`
}

// NoDerivedOutput occurs when a derivation pipeline terminates
// (including via an intentional stop) without producing its output
// variable.
type NoDerivedOutput struct {
	Concept  string
	Property string
}

func (e *NoDerivedOutput) Error() string {
	return `derivation for property "` + e.Property + `" of concept "` + e.Concept +
		`" produced no output`
}
