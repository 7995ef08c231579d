package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"stageline.dev/stageline/internal/git"
)

// Actor identifies who performs an operation
type Actor struct {
	Name  string
	Email string
}

// Request carries per-invocation state through an operation. The engine keeps no
// request state of its own.
type Request struct {
	ID    string
	Actor Actor
	Time  time.Time
}

// NewRequest creates a request for actor stamped with a fresh id and the current time
func NewRequest(name, email string) *Request {
	return &Request{
		ID:    uuid.NewString(),
		Actor: Actor{Name: name, Email: email},
		Time:  time.Now().UTC().Truncate(time.Second),
	}
}

// Account returns the actor as "Name <email>"
func (r *Request) Account() string {
	return fmt.Sprintf("%s <%s>", r.Actor.Name, r.Actor.Email)
}

// Committer returns the signature used for commits written on behalf of the actor
func (r *Request) Committer() git.Signature {
	return git.Signature{Name: r.Actor.Name, Email: r.Actor.Email, When: r.Time}
}
