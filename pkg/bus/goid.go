package bus

import (
	"runtime"
	"strconv"
	"strings"
)

// goroutineID returns the numeric id of the calling goroutine, parsed from
// the first line of its stack header ("goroutine N [running]:"). The Go
// runtime deliberately offers no API for this; the stack header is the one
// stable place the id appears. Used only for owner-goroutine verification.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	idField := header[:strings.IndexByte(header, ' ')]
	id, err := strconv.ParseInt(idField, 10, 64)
	if err != nil {
		return -1
	}
	return id
}
