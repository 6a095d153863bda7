package relay

// UncheckedError is used in places where we consciously do not care about
// an error but we want to surface it in logs for debugging.
func UncheckedError(err error) {
	if err == nil {
		return
	}
	Logger.Debugw("unchecked error", "error", err)
}

// UncheckedErrorFunc calls the given function and applies UncheckedError
// to its result.
func UncheckedErrorFunc(f func() error) {
	UncheckedError(f())
}
