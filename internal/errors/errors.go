// Package errors provides the closed set of error kinds reported by stageline operations.
// Use errors.Is() against the kind sentinels, errors.As() for *Error, or KindOf().
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure. The set is closed; callers switch on it.
type Kind int

const (
	// KindUnknown is reported for errors that did not originate from a stageline operation.
	KindUnknown Kind = iota
	// KindInvalidReference means an object or ref does not exist or cannot be read.
	KindInvalidReference
	// KindMergeConflict means a three-way merge produced a tree-level conflict.
	KindMergeConflict
	// KindStatusConflict means a change is not in the status a transition requires.
	KindStatusConflict
	// KindConcurrentBranchMove means a ref moved between read and compare-and-set.
	KindConcurrentBranchMove
	// KindTraversalBoundExceeded means a bounded history walk did not reach its stop point.
	KindTraversalBoundExceeded
	// KindPreconditionFailed covers stale revisions, unmet review requirements, unmerged
	// merge parents and empty staging or build ranges.
	KindPreconditionFailed
	// KindUpdateFailed means a store or ref write failed. Nothing was changed.
	KindUpdateFailed
	// KindInvalidInput means an operation's parameters failed validation.
	KindInvalidInput
)

// String returns the kind name used in logs and API responses
func (k Kind) String() string {
	switch k {
	case KindInvalidReference:
		return "InvalidReference"
	case KindMergeConflict:
		return "MergeConflict"
	case KindStatusConflict:
		return "StatusConflict"
	case KindConcurrentBranchMove:
		return "ConcurrentBranchMove"
	case KindTraversalBoundExceeded:
		return "TraversalBoundExceeded"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	case KindUpdateFailed:
		return "UpdateFailed"
	case KindInvalidInput:
		return "InvalidInput"
	default:
		return "Unknown"
	}
}

// Sentinel errors, one per kind
var (
	ErrInvalidReference       = errors.New("invalid reference")
	ErrMergeConflict          = errors.New("merge conflict")
	ErrStatusConflict         = errors.New("status conflict")
	ErrConcurrentBranchMove   = errors.New("concurrent branch move")
	ErrTraversalBoundExceeded = errors.New("traversal bound exceeded")
	ErrPreconditionFailed     = errors.New("precondition failed")
	ErrUpdateFailed           = errors.New("update failed")
	ErrInvalidInput           = errors.New("invalid input")
)

var sentinels = map[Kind]error{
	KindInvalidReference:       ErrInvalidReference,
	KindMergeConflict:          ErrMergeConflict,
	KindStatusConflict:         ErrStatusConflict,
	KindConcurrentBranchMove:   ErrConcurrentBranchMove,
	KindTraversalBoundExceeded: ErrTraversalBoundExceeded,
	KindPreconditionFailed:     ErrPreconditionFailed,
	KindUpdateFailed:           ErrUpdateFailed,
	KindInvalidInput:           ErrInvalidInput,
}

// Error is an operation failure of a known kind
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = sentinels[e.Kind].Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is returns true if the target is the sentinel for this error's kind
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && target == s
}

// New creates an Error of the given kind
func New(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around a cause
func Wrap(kind Kind, op string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, falling back to
// whichever kind sentinel the chain matches.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for kind := KindInvalidReference; kind <= KindInvalidInput; kind++ {
		if errors.Is(err, sentinels[kind]) {
			return kind
		}
	}
	return KindUnknown
}

// MergeConflictError reports the commits whose merge conflicted and the conflicting paths
type MergeConflictError struct {
	Source string
	Dest   string
	Paths  []string
}

func (e *MergeConflictError) Error() string {
	msg := fmt.Sprintf("merge conflict applying %s onto %s", short(e.Source), short(e.Dest))
	if len(e.Paths) > 0 {
		msg += fmt.Sprintf(" (%d conflicting paths: %v)", len(e.Paths), e.Paths)
	}
	return msg
}

// Is returns true if the target error is ErrMergeConflict
func (e *MergeConflictError) Is(target error) bool {
	return target == ErrMergeConflict
}

// NewMergeConflictError creates a new MergeConflictError
func NewMergeConflictError(source, dest string, paths []string) *MergeConflictError {
	return &MergeConflictError{Source: source, Dest: dest, Paths: paths}
}

// StatusConflictError reports a transition attempted from an unexpected status
type StatusConflictError struct {
	Change int
	Actual string
	Target string
}

func (e *StatusConflictError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("change %d is %s, cannot move to %s", e.Change, e.Actual, e.Target)
	}
	return fmt.Sprintf("change %d is %s", e.Change, e.Actual)
}

// Is returns true if the target error is ErrStatusConflict
func (e *StatusConflictError) Is(target error) bool {
	return target == ErrStatusConflict
}

// NewStatusConflictError creates a new StatusConflictError
func NewStatusConflictError(change int, actual, target string) *StatusConflictError {
	return &StatusConflictError{Change: change, Actual: actual, Target: target}
}

// RefNotFoundError represents a ref that does not exist
type RefNotFoundError struct {
	Ref string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("ref %s not found", e.Ref)
}

// Is returns true if the target error is ErrInvalidReference
func (e *RefNotFoundError) Is(target error) bool {
	return target == ErrInvalidReference
}

// NewRefNotFoundError creates a new RefNotFoundError
func NewRefNotFoundError(ref string) *RefNotFoundError {
	return &RefNotFoundError{Ref: ref}
}

// GitCommandError represents an error from a git command execution
type GitCommandError struct {
	Command string
	Args    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *GitCommandError) Error() string {
	msg := fmt.Sprintf("git command failed: %s", e.Command)
	if len(e.Args) > 0 {
		msg += fmt.Sprintf(" %v", e.Args)
	}
	if e.Stderr != "" {
		msg += fmt.Sprintf("\nstderr: %s", e.Stderr)
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n%v", e.Err)
	}
	return msg
}

func (e *GitCommandError) Unwrap() error {
	return e.Err
}

// NewGitCommandError creates a new GitCommandError
func NewGitCommandError(command string, args []string, stdout, stderr string, err error) *GitCommandError {
	return &GitCommandError{
		Command: command,
		Args:    args,
		Stdout:  stdout,
		Stderr:  stderr,
		Err:     err,
	}
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
