package errors

import "testing"

func TestWrap(t *testing.T) {
	err := Wrap(errWrapped, "Hello, Wrapped!")
	if err.Error() != "Hello, Wrapped!, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "ignored"); err != nil {
		t.Fatalf("wrap nil must stay nil, got %+v", err)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errWrapped, "attempt %d of %d", 2, 3)
	if err.Error() != "attempt 2 of 3, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}
}

func TestIsSeesThroughWrap(t *testing.T) {
	err := Wrapf(errWrapped, "outer")
	if !Is(err, errWrapped) {
		t.Fatalf("wrapped sentinel not matched: %+v", err)
	}
}
