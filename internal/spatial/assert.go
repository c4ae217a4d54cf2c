//go:build !slotdebug

package spatial

func assertf(string, ...any) {}
