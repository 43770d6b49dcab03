package gridwire

import (
	"reflect"
	"sync"
)

// descriptorCache is the concurrent class->descriptor mapping of spec.md
// §4.D, grounded on pk910-dynamic-ssz's ssztypes/typecache.go TypeCache:
// a check-then-build-then-install pattern with an explicit eviction API
// mapping onto spec.md's "undeploy-by-loader eviction". Unlike typecache's
// sync.RWMutex, gridwire uses sync.Map so cache hits — the hot path per
// spec.md §5 — are genuinely lock-free, not merely read-locked.
type descriptorCache struct {
	descriptors sync.Map // reflect.Type -> *ClassDescriptor
	byID        sync.Map // uint32 -> *ClassDescriptor, for reverse id->name lookups on read
	loaders     sync.Map // reflect.Type -> Loader
}

func newDescriptorCache() *descriptorCache {
	return &descriptorCache{}
}

// get returns the cached descriptor for t, building and installing one on
// miss. A losing concurrent builder discards its candidate and uses the
// one that won, per spec.md's "exactly one descriptor is installed per
// (class) key even under concurrent lookups".
func (c *descriptorCache) get(t reflect.Type, build func() (*ClassDescriptor, error)) (*ClassDescriptor, error) {
	if v, ok := c.descriptors.Load(t); ok {
		return v.(*ClassDescriptor), nil
	}
	d, err := build()
	if err != nil {
		return nil, err
	}
	actual, _ := c.descriptors.LoadOrStore(t, d)
	resolved := actual.(*ClassDescriptor)
	c.byID.LoadOrStore(resolved.TypeID, resolved)
	return resolved, nil
}

// byTypeID returns the descriptor this cache has already seen (on the
// write or read side) for the given type id, if any.
func (c *descriptorCache) byTypeID(id uint32) (*ClassDescriptor, bool) {
	v, ok := c.byID.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*ClassDescriptor), true
}

// associate records that t was registered under loader, for later undeploy.
func (c *descriptorCache) associate(t reflect.Type, loader Loader) {
	if loader != nil {
		c.loaders.Store(t, loader)
	}
}

// onUndeploy removes every descriptor associated with loader. This is an
// infrequent administrative scan, per spec.md §5's "not on the hot path".
func (c *descriptorCache) onUndeploy(loader Loader) {
	var toDelete []reflect.Type
	c.loaders.Range(func(k, v any) bool {
		if l, ok := v.(Loader); ok && l.Name() == loader.Name() {
			toDelete = append(toDelete, k.(reflect.Type))
		}
		return true
	})
	for _, t := range toDelete {
		c.descriptors.Delete(t)
		c.loaders.Delete(t)
	}
}
