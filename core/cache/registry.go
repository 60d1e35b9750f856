package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/internal/logging"
)

// Kind names a backend implementation.
type Kind string

const (
	KindMemory Kind = "memory"
	KindDisk   Kind = "disk"
	KindRedis  Kind = "redis"
)

const memoryKey = "__in_memory__"

// Descriptor identifies a cache location. Equal keys resolve to the same backend.
type Descriptor struct {
	Kind  Kind
	Dir   string
	TTL   time.Duration
	Redis RedisOptions
}

// MemoryDescriptor describes the shared in-memory backend.
func MemoryDescriptor() Descriptor { return Descriptor{Kind: KindMemory} }

// DiskDescriptor describes a disk backend rooted at dir.
func DiskDescriptor(dir string) Descriptor { return Descriptor{Kind: KindDisk, Dir: dir} }

// RedisDescriptor describes a redis backend.
func RedisDescriptor(opts RedisOptions) Descriptor { return Descriptor{Kind: KindRedis, Redis: opts} }

// ParseKind accepts the symbolic backend names used in configuration.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", "mem", "inmemory", "in_memory":
		return KindMemory, nil
	case KindMemory, KindDisk, KindRedis:
		return k, nil
	}
	return "", errs.Configurationf("parse cache kind", "unknown cache backend %q", s)
}

// Key is the canonical registry key.
func (d Descriptor) Key() string {
	switch d.Kind {
	case KindDisk:
		if d.Dir == "" {
			return "disk:"
		}
		return "disk:" + filepath.Clean(d.Dir)
	case KindRedis:
		o := d.Redis.withDefaults()
		return fmt.Sprintf("redis:%s/%d#%s", o.addr(), o.DB, credentialDigest(o))
	}
	return memoryKey
}

// credentialDigest separates redis descriptors that differ only in
// credentials without putting them in the key. Connections are still
// pooled by address and database.
func credentialDigest(o RedisOptions) string {
	h := sha256.New()
	h.Write(o.SigningKey)
	h.Write([]byte{0})
	h.Write([]byte(o.Password))
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// Registry shares backends between sources built with equal descriptors.
type Registry struct {
	mu       sync.Mutex
	backends map[string]Backend
	log      logr.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log logr.Logger) *Registry {
	return &Registry{backends: map[string]Backend{}, log: log}
}

// Resolve returns the backend for d, constructing it on first use.
func (r *Registry) Resolve(d Descriptor) (Backend, error) {
	key := d.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.backends[key]; ok {
		return b, nil
	}
	b, err := r.open(d)
	if err != nil {
		return nil, err
	}
	r.backends[key] = b
	r.log.V(logging.DEBUG).Info("cache backend created", "key", key)
	return b, nil
}

func (r *Registry) open(d Descriptor) (Backend, error) {
	switch d.Kind {
	case KindMemory, "":
		return NewMemory(d.TTL), nil
	case KindDisk:
		return NewDisk(d.Dir, WithDiskTTL(d.TTL))
	case KindRedis:
		opts := d.Redis
		if opts.TTL <= 0 {
			opts.TTL = d.TTL
		}
		return NewRedis(opts, r.log)
	}
	return nil, errs.Configurationf("resolve cache", "unknown cache backend %q", d.Kind)
}

// Keys lists the registered descriptor keys in order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.backends))
	for k := range r.backends {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset closes every backend and empties the registry.
func (r *Registry) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	for key, b := range r.backends {
		err = multierr.Append(err, b.Close())
		delete(r.backends, key)
	}
	return err
}

var defaultRegistry = NewRegistry(logr.Discard())

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Resolve resolves d in the process-wide registry.
func Resolve(d Descriptor) (Backend, error) { return defaultRegistry.Resolve(d) }

// ResetRegistry clears the process-wide registry, for test isolation.
func ResetRegistry() error { return defaultRegistry.Reset() }

// SetLogger replaces the process-wide registry's logger.
func SetLogger(log logr.Logger) {
	defaultRegistry.mu.Lock()
	defaultRegistry.log = log
	defaultRegistry.mu.Unlock()
}
