package services

// ErrorList accumulates errors from the independent fetch paths of the
// statement view. It is append-only between explicit clears. The owning
// controller serializes access; ErrorList itself does no locking.
type ErrorList struct {
	errs []error
}

// Append adds an error to the end of the list.
func (l *ErrorList) Append(err error) {
	l.errs = append(l.errs, err)
}

// Clear removes all accumulated errors.
func (l *ErrorList) Clear() {
	l.errs = nil
}

// Errors returns a copy of the accumulated errors in append order.
func (l *ErrorList) Errors() []error {
	out := make([]error, len(l.errs))
	copy(out, l.errs)
	return out
}

// Len returns the number of accumulated errors.
func (l *ErrorList) Len() int {
	return len(l.errs)
}
