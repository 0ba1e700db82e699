package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Luismorlan/pow_ledger/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var invalidArgument = []error{
	model.ErrMalformedRequest,
	model.ErrInvalidSignature,
	model.ErrInvalidBlock,
	model.ErrInvalidChain,
}

var failedPrecondition = []error{
	model.ErrInsufficientFunds,
	model.ErrDoubleSpend,
	model.ErrForeignChain,
	model.ErrStaleBlock,
}

// ToStatus turns a node error into a gRPC status carrying the same message.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, target := range invalidArgument {
		if errors.Is(err, target) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
	for _, target := range failedPrecondition {
		if errors.Is(err, target) {
			return status.Error(codes.FailedPrecondition, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus recovers the sentinel error of a status produced by ToStatus, so
// callers can match it with errors.Is. Unknown statuses are returned as is.
func FromStatus(err error) error {
	s, ok := status.FromError(err)
	if !ok || s.Code() == codes.OK {
		return err
	}
	msg := s.Message()
	for _, target := range append(invalidArgument, failedPrecondition...) {
		if strings.HasPrefix(msg, target.Error()) {
			return fmt.Errorf("%w%s", target, strings.TrimPrefix(msg, target.Error()))
		}
	}
	return err
}
