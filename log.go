package tdms

import "go.uber.org/zap"

// nopLogger is used whenever a caller doesn't supply one, so call sites
// never need a nil check.
func nopLogger() *zap.Logger {
	return zap.NewNop()
}
