package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/financehub/internal/client/client"
	"github.com/dmitrijs2005/financehub/internal/client/models"
)

// Kind classifies why a pass failed.
type Kind string

const (
	// KindTransient covers timeouts, unreachable servers and connectivity
	// lost mid-pass.
	KindTransient Kind = "transient"
	// KindRemote is a server answer that retrying soon will not change,
	// such as a rejected token.
	KindRemote Kind = "remote"
	// KindPullApply is a malformed or unexpected remote record.
	KindPullApply Kind = "pull_apply"
	// KindLocalStorage is a failure of the local store.
	KindLocalStorage Kind = "local_storage"
)

// Phase names the step of a pass.
type Phase string

const (
	PhasePush      Phase = "push"
	PhasePull      Phase = "pull"
	PhaseRetention Phase = "retention"
)

var ErrUntrustedNetwork = errors.New("not on a trusted network")

// SyncError is the failure result of a pass.
type SyncError struct {
	Kind  Kind
	Phase Phase
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s failed (%s): %v", e.Phase, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Retryable reports whether the scheduler should retry with backoff. A
// failed pull is retried so the same delta window is fetched again.
func (e *SyncError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindPullApply
}

// IsRetryable reports whether err is a retryable *SyncError.
func IsRetryable(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Retryable()
}

func localErr(phase Phase, err error) error {
	return &SyncError{Kind: KindLocalStorage, Phase: phase, Err: err}
}

func pullErr(err error) error {
	return &SyncError{Kind: KindPullApply, Phase: PhasePull, Err: err}
}

// remoteErr classifies an error returned by the remote endpoint.
func remoteErr(phase Phase, err error) error {
	kind := KindRemote
	switch {
	case errors.Is(err, client.ErrUnavailable),
		errors.Is(err, ErrUntrustedNetwork),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = KindTransient
	}
	return &SyncError{Kind: kind, Phase: phase, Err: err}
}

// storeErr maps an error from a store call made while applying a pulled
// record: malformed keys are the record's fault, anything else is local.
func storeErr(err error) error {
	if errors.Is(err, models.ErrInvalidClientID) {
		return pullErr(err)
	}
	return localErr(PhasePull, err)
}
