package comm

import "fmt"

func errSize(op string, want, got int) error {
	return fmt.Errorf("comm: %s: expected %d entries, got %d", op, want, got)
}

func errInvalidRoot(root, size int) error {
	return fmt.Errorf("comm: root rank %d is out of range for a group of size %d", root, size)
}
