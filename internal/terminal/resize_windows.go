//go:build windows

package terminal

// Windows consoles report resizes as input records, not signals; the size
// is only refreshed on Fit.
func watchResize(fit func()) func() {
	return func() {}
}
