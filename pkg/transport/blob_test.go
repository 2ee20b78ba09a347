package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitDelayAppliesBackoffFactor(t *testing.T) {
	next, err := WaitDelay(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitDelay: %v", err)
	}
	want := time.Duration(float64(100*time.Millisecond) * BackoffFactor)
	if next != want {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestWaitDelayCapsAtMaxRetryDelay(t *testing.T) {
	next, err := WaitDelay(context.Background(), MaxRetryDelay)
	if err != nil {
		t.Fatalf("WaitDelay: %v", err)
	}
	if next != MaxRetryDelay {
		t.Fatalf("next = %v, want capped at %v", next, MaxRetryDelay)
	}
}

func TestWaitDelayReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := WaitDelay(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitDelay err = %v, want context.Canceled", err)
	}
}

func TestBlobErrorPassesNilThrough(t *testing.T) {
	if err := BlobError(nil); err != nil {
		t.Fatalf("BlobError(nil) = %v, want nil", err)
	}
}

func TestBlobErrorPassesContextCanceledThrough(t *testing.T) {
	if err := BlobError(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("BlobError(context.Canceled) = %v, want context.Canceled", err)
	}
}

func TestBlobErrorPassesUnrelatedErrorThrough(t *testing.T) {
	sentinel := errors.New("some other failure")
	if err := BlobError(sentinel); err != sentinel {
		t.Fatalf("BlobError = %v, want the same sentinel unchanged", err)
	}
}
