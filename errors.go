package lifecycle

import "errors"

// Sentinel errors covering the taxonomy of spec §7. Result structs also
// carry a string Code mirroring these, so callers can switch on the code
// without an errors.Is chain when that is more convenient.
var (
	ErrInvalidComponentName  = errors.New("lifecycle: invalid component name")
	ErrDuplicateName         = errors.New("lifecycle: duplicate component name")
	ErrDuplicateInstance     = errors.New("lifecycle: component instance already registered")
	ErrInvalidPosition       = errors.New("lifecycle: invalid insert position")
	ErrTargetNotFound        = errors.New("lifecycle: insert target not found")
	ErrDependencyCycle       = errors.New("lifecycle: dependency cycle detected")
	ErrShutdownInProgress    = errors.New("lifecycle: shutdown in progress")
	ErrStartupInProgress     = errors.New("lifecycle: startup in progress")
	ErrAlreadyInProgress     = errors.New("lifecycle: operation already in progress")
	ErrNoComponentsRegistered = errors.New("lifecycle: no components registered")
	ErrStalledComponentsExist = errors.New("lifecycle: stalled components exist")
	ErrUnknownComponent      = errors.New("lifecycle: unknown component")
	ErrComponentNotRunning   = errors.New("lifecycle: component not running")
	ErrHasRunningDependents  = errors.New("lifecycle: component has running dependents")
	ErrStartTimeout          = errors.New("lifecycle: component start timed out")
	ErrStopTimeout           = errors.New("lifecycle: component stop timed out")
	ErrNoHandler             = errors.New("lifecycle: component has no handler")
)

// Code is a short machine-checkable result classifier, mirrored onto every
// rich result struct the manager returns (spec §4.4–§4.8, §7).
type Code string

const (
	CodeOK                      Code = "ok"
	CodeAlreadyInProgress       Code = "already_in_progress"
	CodeShutdownInProgress      Code = "shutdown_in_progress"
	CodeStartupInProgress       Code = "startup_in_progress"
	CodeNoComponentsRegistered  Code = "no_components_registered"
	CodeStalledComponentsExist Code = "stalled_components_exist"
	CodeDependencyCycle         Code = "dependency_cycle"
	CodeStartupTimeout          Code = "startup_timeout"
	CodeUnknownError            Code = "unknown_error"
	CodeInvalidPosition         Code = "invalid_position"
	CodeDuplicateInstance       Code = "duplicate_instance"
	CodeDuplicateName           Code = "duplicate_name"
	CodeTargetNotFound           Code = "target_not_found"

	CodeSent       Code = "sent"
	CodeTimeout    Code = "timeout"
	CodeError      Code = "error"
	CodeNoHandler  Code = "no_handler"
	CodeNotFound   Code = "not_found"
	CodeStopped    Code = "stopped"
	CodeStalled    Code = "stalled"
	CodeFound      Code = "found"
	CodeDegraded   Code = "degraded"
)
