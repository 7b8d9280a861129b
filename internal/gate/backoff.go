package gate

import "runtime"

const (
	minSpins = 4
	maxSpins = 1 << 10
)

// backoff doubles a busy-wait up to maxSpins, then yields on every call.
type backoff struct {
	spins int
}

func (b *backoff) wait() {
	if b.spins == 0 {
		b.spins = minSpins
	}
	if b.spins > maxSpins {
		runtime.Gosched()
		return
	}
	for i := 0; i < b.spins; i++ {
		spin()
	}
	b.spins <<= 1
}

//go:noinline
func spin() {}
