package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cyclesync/internal/docpath"
	"github.com/dmitrijs2005/cyclesync/internal/rpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies remote failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindPermission
	KindNotFound
	KindInvalidData
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindInvalidData:
		return "invalid_data"
	default:
		return "unknown"
	}
}

// Error is the only error type returned by Service implementations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether retrying may succeed. Unknown failures are
// retried too: dropping a queued write on an unexplained error would lose
// data, and the attempt cap still bounds the retries.
func (e *Error) Transient() bool {
	return e.Kind == KindNetwork || e.Kind == KindUnknown
}

// IsTransient reports whether err is a retryable remote failure.
func IsTransient(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Transient()
}

// IsNotFound reports whether err is a remote not-found failure.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindNotFound
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindNetwork
	case errors.Is(err, rpc.ErrMalformed), errors.Is(err, docpath.ErrInvalidPath):
		return KindInvalidData
	}

	st, ok := status.FromError(err)
	if !ok {
		return KindUnknown
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Canceled, codes.Internal:
		return KindNetwork
	case codes.Unauthenticated, codes.PermissionDenied:
		return KindPermission
	case codes.NotFound:
		return KindNotFound
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange,
		codes.AlreadyExists, codes.Unimplemented, codes.DataLoss:
		return KindInvalidData
	default:
		return KindUnknown
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Kind: kindOf(err), Op: op, Err: err}
}
