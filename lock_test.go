package ifcb

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockTable(t *testing.T) {
	t.Parallel()

	table := lockTable{locks: make(map[string]*destLock)}
	var inside, peak atomic.Int32

	var wg sync.WaitGroup
	for i := range 16 {
		paths := []string{"/a.hdr", "/a.adc", "/a.roi"}
		if i%2 == 0 {
			// Same set, different order.
			paths = []string{"/a.roi", "/a.hdr", "/a.adc", "/a.hdr"}
		}
		wg.Go(func() {
			unlock := table.lock(paths...)
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			inside.Add(-1)
			unlock()
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Zero(t, table.size())

	unlockA := table.lock("/x")
	unlockB := table.lock("/y")
	assert.Equal(t, 2, table.size())
	unlockA()
	unlockB()
	assert.Zero(t, table.size())
}
