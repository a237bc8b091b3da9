// Package backend maps storage providers to the repository URI and
// credentials restic needs.
package backend

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fgeck/gorestic-retention/internal/models"
)

// ErrNoBackend is returned by Select when no backend is configured.
var ErrNoBackend = errors.New("no backend configured")

// Backend builds restic settings for one storage provider.
type Backend interface {
	// Configured reports whether settings select this backend.
	Configured(settings models.BackendSettings) bool
	// ResticConfig returns the repository, password and environment for
	// restic. host, when set, is passed as RESTIC_HOST.
	ResticConfig(settings models.BackendSettings, host string) (models.ResticConfig, error)
}

// SSHBackend is implemented by backends reached over SSH.
type SSHBackend interface {
	SSHTarget(settings models.BackendSettings) (models.SSHTarget, error)
}

// BucketBackend is implemented by S3-compatible backends.
type BucketBackend interface {
	BucketTarget(settings models.BackendSettings) (models.BucketTarget, error)
}

// Registration describes a registered backend.
type Registration struct {
	ShortName string
	Aliases   []string
	// Priority orders automatic selection, lower first. Zero means unset and
	// sorts after every explicit priority.
	Priority int
	Backend  Backend
}

// Names returns the short name followed by the aliases.
func (r Registration) Names() []string {
	return append([]string{r.ShortName}, r.Aliases...)
}

// Registry is an ordered set of backends.
type Registry struct {
	regs  []Registration
	names map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: map[string]int{}}
}

// Register adds a backend. Names and aliases are case-insensitive and must be
// unique across the registry.
func (r *Registry) Register(reg Registration) error {
	if reg.ShortName == "" {
		return fmt.Errorf("backend short name is required")
	}
	if reg.Backend == nil {
		return fmt.Errorf("backend %s: implementation is nil", reg.ShortName)
	}
	if reg.Priority < 0 {
		return fmt.Errorf("backend %s: priority must not be negative", reg.ShortName)
	}
	for _, name := range reg.Names() {
		if _, ok := r.names[strings.ToLower(name)]; ok {
			return fmt.Errorf("backend name %q already registered", name)
		}
	}

	idx := len(r.regs)
	r.regs = append(r.regs, reg)
	for _, name := range reg.Names() {
		r.names[strings.ToLower(name)] = idx
	}
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(reg Registration) {
	if err := r.Register(reg); err != nil {
		panic(err)
	}
}

// Get looks a backend up by short name or alias.
func (r *Registry) Get(name string) (Registration, bool) {
	idx, ok := r.names[strings.ToLower(name)]
	if !ok {
		return Registration{}, false
	}
	return r.regs[idx], true
}

// All returns the backends in priority order. Backends with equal priority
// keep their registration order.
func (r *Registry) All() []Registration {
	out := append([]Registration{}, r.regs...)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Priority) < rank(out[j].Priority)
	})
	return out
}

func rank(priority int) int {
	if priority == 0 {
		return math.MaxInt
	}
	return priority
}

// Select returns the backend named in settings, or the first configured
// backend in priority order.
func (r *Registry) Select(settings models.BackendSettings) (Registration, error) {
	if settings.Name != "" {
		reg, ok := r.Get(settings.Name)
		if !ok {
			return Registration{}, fmt.Errorf("unknown backend %q", settings.Name)
		}
		return reg, nil
	}

	for _, reg := range r.All() {
		if reg.Backend.Configured(settings) {
			return reg, nil
		}
	}
	return Registration{}, ErrNoBackend
}

// Default returns a registry with the built-in backends.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(Registration{ShortName: "os", Aliases: []string{"swift", "openstack"}, Priority: 1, Backend: Swift{}})
	r.MustRegister(Registration{ShortName: "b2", Priority: 2, Backend: B2{}})
	r.MustRegister(Registration{ShortName: "sftp", Priority: 3, Backend: SFTP{}})
	r.MustRegister(Registration{ShortName: "local", Priority: 4, Backend: Local{}})
	r.MustRegister(Registration{ShortName: "s3", Backend: S3{}})
	r.MustRegister(Registration{ShortName: "r2", Backend: R2{}})
	r.MustRegister(Registration{ShortName: "oracle", Backend: Oracle{}})
	r.MustRegister(Registration{ShortName: "rest", Backend: Rest{}})
	return r
}
