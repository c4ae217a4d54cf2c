//go:build slotdebug

package spatial

import "fmt"

func assertf(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}
