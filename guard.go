package secretflash

import "sync/atomic"

const (
	guardBusy uint32 = 1 << iota
	guardAbort
)

// Guard serializes flash operations and carries the abort request.
//
// The firmware this models keeps busy and abort in two plain flags because
// dispatch and the key hook never run concurrently on its single core. Here
// both live in one state word so an abort request can only land on the
// operation that was running when it was made.
type Guard struct {
	state atomic.Uint32
}

// Begin marks the guard busy with a clear abort bit. It returns false if an
// operation is already in progress.
func (g *Guard) Begin() bool {
	return g.state.CompareAndSwap(0, guardBusy)
}

// End returns the guard to idle and reports whether an abort was requested
// during the operation.
func (g *Guard) End() (aborted bool) {
	return g.state.Swap(0)&guardAbort != 0
}

// RequestAbort asks the running operation to stop. It has no effect when
// idle and returns whether the request was recorded.
func (g *Guard) RequestAbort() bool {
	for {
		s := g.state.Load()
		if s&guardBusy == 0 {
			return false
		}
		if s&guardAbort != 0 || g.state.CompareAndSwap(s, s|guardAbort) {
			return true
		}
	}
}

// Busy reports whether an operation is in progress.
func (g *Guard) Busy() bool { return g.state.Load()&guardBusy != 0 }

// Aborted implements Token.
func (g *Guard) Aborted() bool { return g.state.Load()&guardAbort != 0 }

var _ Token = (*Guard)(nil)
