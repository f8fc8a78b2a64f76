package registry

import (
	"bytes"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// View is an immutable snapshot of the registry. Router slices are in registration order,
// modulo the reordering caused by removals. SupportedPools is sorted by address.
type View struct {
	Owner          common.Address   `json:"owner"`
	V2Routers      []common.Address `json:"v2Routers"`
	V3Routers      []common.Address `json:"v3Routers"`
	SupportedPools []common.Address `json:"supportedPools"`

	supported mapset.Set[common.Address]
}

// IsPoolSupported reports whether pool is whitelisted in this snapshot.
func (v *View) IsPoolSupported(pool common.Address) bool {
	return v.supported != nil && v.supported.Contains(pool)
}

// addressList is an ordered set of addresses with O(1) membership and O(1) removal by index.
// Removal moves the last element into the freed slot.
type addressList struct {
	addresses []common.Address
	index     map[common.Address]int
}

func newAddressList(addrs []common.Address) addressList {
	l := addressList{
		addresses: make([]common.Address, 0, len(addrs)),
		index:     make(map[common.Address]int, len(addrs)),
	}
	for _, a := range addrs {
		if _, ok := l.index[a]; ok || a == (common.Address{}) {
			continue
		}
		l.index[a] = len(l.addresses)
		l.addresses = append(l.addresses, a)
	}
	return l
}

func (l *addressList) add(addr common.Address) error {
	if addr == (common.Address{}) {
		return engine.ErrInvalidAddress
	}
	if _, ok := l.index[addr]; ok {
		return fmt.Errorf("%w: %s", engine.ErrAlreadyRegistered, addr)
	}
	l.index[addr] = len(l.addresses)
	l.addresses = append(l.addresses, addr)
	return nil
}

func (l *addressList) removeAt(i int) (common.Address, error) {
	if i < 0 || i >= len(l.addresses) {
		return common.Address{}, fmt.Errorf("%w: index %d, length %d", engine.ErrIndexOutOfRange, i, len(l.addresses))
	}
	removed := l.addresses[i]
	last := len(l.addresses) - 1
	if i != last {
		moved := l.addresses[last]
		l.addresses[i] = moved
		l.index[moved] = i
	}
	l.addresses[last] = common.Address{}
	l.addresses = l.addresses[:last]
	delete(l.index, removed)
	return removed, nil
}

func (l *addressList) contains(addr common.Address) bool {
	_, ok := l.index[addr]
	return ok
}

func (l *addressList) snapshot() []common.Address {
	return slices.Clone(l.addresses)
}

// Registry holds the supported venues and pools. It is not safe for concurrent use; System wraps it.
type Registry struct {
	owner     common.Address
	v2Routers addressList
	v3Routers addressList
	pools     mapset.Set[common.Address]
}

// NewRegistry creates an empty registry administered by owner.
func NewRegistry(owner common.Address) *Registry {
	return &Registry{
		owner:     owner,
		v2Routers: newAddressList(nil),
		v3Routers: newAddressList(nil),
		pools:     mapset.NewThreadUnsafeSet[common.Address](),
	}
}

// NewRegistryFromView rebuilds a registry from a snapshot. Zero and duplicate addresses are dropped.
func NewRegistryFromView(view *View) *Registry {
	pools := mapset.NewThreadUnsafeSet[common.Address]()
	for _, p := range view.SupportedPools {
		if p != (common.Address{}) {
			pools.Add(p)
		}
	}
	return &Registry{
		owner:     view.Owner,
		v2Routers: newAddressList(view.V2Routers),
		v3Routers: newAddressList(view.V3Routers),
		pools:     pools,
	}
}

func (r *Registry) authorize(caller common.Address) error {
	if caller != r.owner {
		return fmt.Errorf("%w: %s", engine.ErrUnauthorized, caller)
	}
	return nil
}

func (r *Registry) addPool(pool common.Address) error {
	if pool == (common.Address{}) {
		return engine.ErrInvalidAddress
	}
	if !r.pools.Add(pool) {
		return fmt.Errorf("%w: pool %s", engine.ErrAlreadyRegistered, pool)
	}
	return nil
}

func (r *Registry) removePool(pool common.Address) error {
	if !r.pools.Contains(pool) {
		return fmt.Errorf("%w: %s", engine.ErrUnsupportedPool, pool)
	}
	r.pools.Remove(pool)
	return nil
}

func (r *Registry) view() *View {
	pools := r.pools.ToSlice()
	slices.SortFunc(pools, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return &View{
		Owner:          r.owner,
		V2Routers:      r.v2Routers.snapshot(),
		V3Routers:      r.v3Routers.snapshot(),
		SupportedPools: pools,
		supported:      r.pools.Clone(),
	}
}
