package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// Config configures a System.
type Config struct {
	Owner common.Address
	// Initial state, applied without ownership checks or notifications.
	V2Routers      []common.Address
	V3Routers      []common.Address
	SupportedPools []common.Address
	// OnChange, if set, is called after every successful mutation, outside the write lock.
	OnChange func(engine.RegistryChanged)
	Logger   engine.Logger
}

func (c *Config) validate() error {
	if c.Owner == (common.Address{}) {
		return errors.New("owner cannot be the zero address")
	}
	if c.Logger == nil {
		return errors.New("logger cannot be nil")
	}
	return nil
}

// System provides a concurrency-safe layer over Registry. Writes are serialised by a mutex and
// every write publishes a fresh View through an atomic pointer so that reads never block.
type System struct {
	mu         sync.Mutex
	registry   *Registry
	cachedView atomic.Pointer[View]
	onChange   func(engine.RegistryChanged)
	logger     engine.Logger
}

// NewSystem creates a registry system seeded from cfg.
func NewSystem(cfg *Config) (*System, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &System{
		registry: NewRegistryFromView(&View{
			Owner:          cfg.Owner,
			V2Routers:      cfg.V2Routers,
			V3Routers:      cfg.V3Routers,
			SupportedPools: cfg.SupportedPools,
		}),
		onChange: cfg.OnChange,
		logger:   cfg.Logger,
	}
	s.cachedView.Store(s.registry.view())
	return s, nil
}

// mutate runs fn under the write lock after the owner check, refreshes the cached view on success
// and emits the resulting notification.
func (s *System) mutate(caller common.Address, op engine.RegistryOp, fn func(r *Registry) (common.Address, error)) error {
	s.mu.Lock()
	if err := s.registry.authorize(caller); err != nil {
		s.mu.Unlock()
		s.logger.Warn("rejected registry mutation", "op", op.String(), "caller", caller, "error", err)
		return err
	}
	addr, err := fn(s.registry)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.cachedView.Store(s.registry.view())
	s.mu.Unlock()

	s.logger.Info("registry changed", "op", op.String(), "address", addr)
	if s.onChange != nil {
		s.onChange(engine.RegistryChanged{Address: addr, Op: op})
	}
	return nil
}

// --- Write Methods ---

// AddV2Router appends router to the V2 list.
func (s *System) AddV2Router(caller, router common.Address) error {
	return s.mutate(caller, engine.OpV2RouterAdded, func(r *Registry) (common.Address, error) {
		return router, r.v2Routers.add(router)
	})
}

// RemoveV2Router removes the V2 router at index. The last router takes its place.
func (s *System) RemoveV2Router(caller common.Address, index int) error {
	return s.mutate(caller, engine.OpV2RouterRemoved, func(r *Registry) (common.Address, error) {
		return r.v2Routers.removeAt(index)
	})
}

// AddV3Router appends router to the V3 list.
func (s *System) AddV3Router(caller, router common.Address) error {
	return s.mutate(caller, engine.OpV3RouterAdded, func(r *Registry) (common.Address, error) {
		return router, r.v3Routers.add(router)
	})
}

// RemoveV3Router removes the V3 router at index. The last router takes its place.
func (s *System) RemoveV3Router(caller common.Address, index int) error {
	return s.mutate(caller, engine.OpV3RouterRemoved, func(r *Registry) (common.Address, error) {
		return r.v3Routers.removeAt(index)
	})
}

// AddSupportedPool whitelists pool for swap execution.
func (s *System) AddSupportedPool(caller, pool common.Address) error {
	return s.mutate(caller, engine.OpPoolSupported, func(r *Registry) (common.Address, error) {
		return pool, r.addPool(pool)
	})
}

// RemoveSupportedPool removes pool from the whitelist.
func (s *System) RemoveSupportedPool(caller, pool common.Address) error {
	return s.mutate(caller, engine.OpPoolUnsupported, func(r *Registry) (common.Address, error) {
		return pool, r.removePool(pool)
	})
}

// TransferOwnership hands the registry to newOwner. It emits no RegistryChanged notification.
func (s *System) TransferOwnership(caller, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return engine.ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.authorize(caller); err != nil {
		return err
	}
	previous := s.registry.owner
	s.registry.owner = newOwner
	s.cachedView.Store(s.registry.view())
	s.logger.Info("registry ownership transferred", "from", previous, "to", newOwner)
	return nil
}

// --- Read Methods ---

// View returns the current snapshot. The returned value is shared and must not be modified.
func (s *System) View() *View {
	return s.cachedView.Load()
}

func (s *System) Owner() common.Address {
	return s.View().Owner
}

// IsPoolSupported reports whether pool is whitelisted for swap execution.
func (s *System) IsPoolSupported(pool common.Address) bool {
	return s.View().IsPoolSupported(pool)
}

// SupportedV2Routers returns a copy of the V2 router list.
func (s *System) SupportedV2Routers() []common.Address {
	return append([]common.Address(nil), s.View().V2Routers...)
}

// SupportedV3Routers returns a copy of the V3 router list.
func (s *System) SupportedV3Routers() []common.Address {
	return append([]common.Address(nil), s.View().V3Routers...)
}

// SupportedPools returns a copy of the whitelisted pools sorted by address.
func (s *System) SupportedPools() []common.Address {
	return append([]common.Address(nil), s.View().SupportedPools...)
}
