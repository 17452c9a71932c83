package saga

import (
	"errors"
	"testing"
)

func TestRollbackRunsCompensationsInLIFOOrder(t *testing.T) {
	f := New(nil)
	var order []int

	f.Run(func() (any, error) { return 1, nil }, func() error {
		order = append(order, 1)
		return nil
	})
	f.Run(func() (any, error) { return 2, nil }, func() error {
		order = append(order, 2)
		return nil
	})
	f.Run(func() (any, error) { return 3, nil }, func() error {
		order = append(order, 3)
		return nil
	})

	f.Rollback()

	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestFailedActionDoesNotRegisterCompensation(t *testing.T) {
	f := New(nil)
	called := false

	_, err := f.Run(func() (any, error) { return nil, errors.New("boom") }, func() error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}

	f.Rollback()
	if called {
		t.Fatal("compensation should not have been registered for a failed action")
	}
}

func TestRollbackContinuesPastFailingCompensation(t *testing.T) {
	f := New(nil)
	var ran []int

	f.Run(func() (any, error) { return nil, nil }, func() error {
		ran = append(ran, 1)
		return errors.New("compensation failed")
	})
	f.Run(func() (any, error) { return nil, nil }, func() error {
		ran = append(ran, 2)
		return nil
	})

	f.Rollback()

	if len(ran) != 2 {
		t.Fatalf("expected both compensations to run despite the first failing, got %v", ran)
	}
}

func TestCommitClearsCompensations(t *testing.T) {
	f := New(nil)
	called := false

	f.Run(func() (any, error) { return nil, nil }, func() error {
		called = true
		return nil
	})
	f.Commit()
	f.Rollback()

	if called {
		t.Fatal("compensation should not run after Commit")
	}
}
