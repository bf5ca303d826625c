package lockmgr

import (
	"context"
	"strings"

	"github.com/ValentinKolb/davlock/lib/lock"
)

// Outcome is the result of a lock validation.
type Outcome uint8

const (
	// OutcomeAllowed means every lock on the affected paths was submitted in the If header.
	OutcomeAllowed Outcome = iota
	// OutcomeDenied means a lock remains that the client did not submit.
	OutcomeDenied
	// OutcomePreconditionFailed means a condition of the If header did not hold.
	OutcomePreconditionFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "Allowed"
	case OutcomeDenied:
		return "Denied"
	case OutcomePreconditionFailed:
		return "PreconditionFailed"
	default:
		return "Unknown"
	}
}

// ValidationResult carries the outcome of Validate and the lock that was checked last.
// For OutcomeDenied Lock is the first lock that was not submitted, for OutcomeAllowed
// it is the last lock matched by a token of the If header (nil if none was matched).
type ValidationResult struct {
	Outcome Outcome
	Lock    *lock.LockInfo
}

// Allowed reports whether the operation may proceed.
func (r ValidationResult) Allowed() bool {
	return r.Outcome == OutcomeAllowed
}

// Validate checks the If header of req against the locks on paths.
//
// Paths are processed in order and the first path that fails decides the result.
// With checkChildLocks the locks on descendants of each path are included.
// When a condition of the If header applies to a path but none of its alternatives
// holds, the result is OutcomePreconditionFailed together with a KindPreconditionFailed
// error. Other errors come from the lock store.
func (m *LockManager) Validate(req *Request, paths []string, checkChildLocks bool) (ValidationResult, error) {
	var lastLock *lock.LockInfo
	if m.store == nil {
		return ValidationResult{Outcome: OutcomeAllowed}, nil
	}

	conditions := lock.ParseIfHeader(req.Header.Get("If"))

	for _, p := range paths {
		locks, err := m.store.GetLocks(p, checkChildLocks)
		if err != nil {
			return ValidationResult{}, err
		}

		if len(conditions) == 0 {
			if len(locks) > 0 {
				return ValidationResult{Outcome: OutcomeDenied, Lock: locks[0]}, nil
			}
			continue
		}

		for _, cond := range conditions {
			condURI := req.URI
			if cond.URI != "" {
				if condURI, err = ResolveURI(m.cfg.BaseURI, cond.URI); err != nil {
					return ValidationResult{}, err
				}
			}

			// conditions for other resources do not apply to this path
			if condURI != "" && !strings.HasPrefix(p, condURI) {
				continue
			}

			matched := false
			for _, ct := range cond.Tokens {
				etagValid := true
				if ct.ETag != "" {
					etag, err := m.tree.ETag(context.Background(), condURI)
					etagValid = err == nil && etag == ct.ETag
				}

				lockValid := true
				if ct.Token != "" {
					lockValid = false
					for i, l := range locks {
						lockToken := l.FormatToken()
						// a negated token holds as soon as one lock differs from it
						if !ct.Positive && lockToken != ct.Token {
							lockValid = true
							break
						}
						if ct.Positive && lockToken == ct.Token {
							lastLock = l
							locks = append(locks[:i:i], locks[i+1:]...)
							lockValid = true
							break
						}
					}
				}

				if etagValid && lockValid {
					matched = true
					break
				}
			}

			if !matched {
				deniedPrecondition.Inc()
				return ValidationResult{Outcome: OutcomePreconditionFailed, Lock: lastLock}, &Error{
					Kind:   KindPreconditionFailed,
					Msg:    "the tokens provided in the if header did not match",
					Header: "If",
				}
			}
		}

		if len(locks) > 0 {
			return ValidationResult{Outcome: OutcomeDenied, Lock: locks[0]}, nil
		}
	}

	return ValidationResult{Outcome: OutcomeAllowed, Lock: lastLock}, nil
}
