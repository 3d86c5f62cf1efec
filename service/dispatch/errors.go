package dispatch

import "errors"

var (
	// ErrNodeDown is returned when the target node does not answer a probe
	ErrNodeDown = errors.New("dispatch: node down")
	// ErrAlreadyDispatched is returned for a job id with an active dispatch
	ErrAlreadyDispatched = errors.New("dispatch: job already dispatched")
	// ErrJobNotFound is returned when the job repository has no such job
	ErrJobNotFound = errors.New("dispatch: job not found")
	// ErrJobTerminal is returned when killing a job that already finished
	ErrJobTerminal = errors.New("dispatch: job already terminal")
	// ErrKillRejected is returned when the node did not kill the job
	ErrKillRejected = errors.New("dispatch: kill rejected")
	// ErrInvalidSpec is returned for a spec without job or id
	ErrInvalidSpec = errors.New("dispatch: invalid job spec")
)
