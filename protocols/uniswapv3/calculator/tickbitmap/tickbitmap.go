package tickbitmap

import (
	"sort"

	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3"
)

// NextInitializedTick finds the next initialized tick in a slice sorted by Index.
// With lte it returns the largest tick <= tick, otherwise the smallest tick > tick.
// The returned position indexes into ticks and is only meaningful when found is true.
func NextInitializedTick(ticks []uniswapv3.TickInfo, tick int32, lte bool) (pos int, found bool) {
	if lte {
		i := sort.Search(len(ticks), func(i int) bool {
			return ticks[i].Index > tick
		})
		if i == 0 {
			return 0, false
		}
		return i - 1, true
	}

	i := sort.Search(len(ticks), func(i int) bool {
		return ticks[i].Index > tick
	})
	if i >= len(ticks) {
		return 0, false
	}
	return i, true
}
