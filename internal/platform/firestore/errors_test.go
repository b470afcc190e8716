package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{codes.NotFound, true, false, false},
		{codes.AlreadyExists, false, true, false},
		{codes.FailedPrecondition, false, true, false},
		{codes.Aborted, false, true, false},
		{codes.Unavailable, false, false, true},
		{codes.ResourceExhausted, false, false, true},
		{codes.PermissionDenied, false, false, false},
	}

	for _, tc := range cases {
		err := WrapError("shipping_rules.get", status.Error(tc.code, "boom"))
		var repoErr *Error
		if !errors.As(err, &repoErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.code, err)
		}
		if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
			t.Fatalf("%s: unexpected classification %+v", tc.code, repoErr)
		}
		if got := repoErr.Error(); got != "shipping_rules.get: rpc error: code = "+tc.code.String()+" desc = boom" {
			t.Fatalf("%s: unexpected message %q", tc.code, got)
		}
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("orders.set", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("orders.set", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if WrapError("orders.set", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestWrapErrorKeepsExistingClassification(t *testing.T) {
	first := WrapError("", status.Error(codes.NotFound, "missing"))
	second := WrapError("orders.get", first)

	var repoErr *Error
	if !errors.As(second, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found classification to survive re-wrapping")
	}
	if repoErr.op != "orders.get" {
		t.Fatalf("expected op to be filled, got %q", repoErr.op)
	}
}
