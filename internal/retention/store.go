package retention

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const (
	// DefaultFileName is the per-project policy file in the working directory.
	DefaultFileName = ".toml"
	// DefaultsFileName is the shared defaults file next to the policy file.
	DefaultsFileName = "default.toml"
)

// Tier tells where a resolved policy came from.
type Tier int

const (
	// TierActive means the policy was already in the active file.
	TierActive Tier = iota + 1
	// TierNamedDefault means a same-named section of the defaults file was copied.
	TierNamedDefault
	// TierGenericDefault means the defaults file's "default" section was copied.
	TierGenericDefault
)

func (t Tier) String() string {
	switch t {
	case TierActive:
		return "active"
	case TierNamedDefault:
		return "named-default"
	case TierGenericDefault:
		return "generic-default"
	default:
		return "unknown"
	}
}

// Resolution is a policy found by Store.Resolve.
type Resolution struct {
	Policy *Policy
	// Subkey is the section the policy was read from in the active file,
	// after any copy.
	Subkey string
	Tier   Tier
}

// Store resolves policies from an active policy file with fallback to a
// shared defaults file. Policies found in the defaults file are copied into
// the active file so later lookups hit it directly.
type Store struct {
	Path        string
	DefaultPath string
	logger      zerolog.Logger
}

// NewStore creates a Store. An empty path means .toml in the working
// directory and an empty defaultPath means default.toml next to path.
func NewStore(path, defaultPath string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		path = filepath.Join(wd, DefaultFileName)
	}
	if defaultPath == "" {
		defaultPath = filepath.Join(filepath.Dir(path), DefaultsFileName)
	}
	return &Store{
		Path:        path,
		DefaultPath: defaultPath,
		logger:      logger,
	}, nil
}

// GetOrCopyPolicy is GetOrCopy on a Store built from the given paths.
func GetOrCopyPolicy(subkey, path, defaultPath string) (*Policy, error) {
	s, err := NewStore(path, defaultPath, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	return s.GetOrCopy(subkey)
}

// GetOrCopy returns the policy for subkey, looking in order at the active
// file's subkey, the defaults file's subkey and the defaults file's
// "default" section. Policies taken from the defaults file are written into
// the active file under subkey. It returns nil when none exist.
func (s *Store) GetOrCopy(subkey string) (*Policy, error) {
	active, err := s.loadActive()
	if err != nil {
		return nil, err
	}
	p, err := active.Policy(subkey)
	if err != nil || p != nil {
		return p, err
	}

	defaults, err := s.loadDefaults()
	if err != nil {
		return nil, err
	}
	for _, key := range []string{subkey, DefaultSubkey} {
		p, err := defaults.Policy(key)
		if err != nil {
			return nil, fmt.Errorf("defaults file: %w", err)
		}
		if p == nil {
			continue
		}
		if err := s.copyInto(active, subkey, key, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, nil
}

// Resolve finds the policy for a connection known by name and aliases. Each
// name is looked up in the active file and then the defaults file before the
// next name is tried; after that the active file's "default" section and
// finally the defaults file's "default" section (copied under name) are
// used. It returns nil when no policy is configured.
func (s *Store) Resolve(name string, aliases ...string) (*Resolution, error) {
	return s.resolve(true, name, aliases)
}

// Lookup is Resolve without the write-back: the active file is never
// modified. Subkey is where Resolve would store the policy.
func (s *Store) Lookup(name string, aliases ...string) (*Resolution, error) {
	return s.resolve(false, name, aliases)
}

func (s *Store) resolve(copyDefaults bool, name string, aliases []string) (*Resolution, error) {
	active, err := s.loadActive()
	if err != nil {
		return nil, err
	}

	var defaults *Document
	lookupDefaults := func(key string) (*Policy, error) {
		if defaults == nil {
			d, err := s.loadDefaults()
			if err != nil {
				return nil, err
			}
			defaults = d
		}
		p, err := defaults.Policy(key)
		if err != nil {
			return nil, fmt.Errorf("defaults file: %w", err)
		}
		return p, nil
	}
	copyInto := func(subkey, from string, p *Policy) error {
		if !copyDefaults {
			return nil
		}
		return s.copyInto(active, subkey, from, p)
	}

	for _, n := range append([]string{name}, aliases...) {
		p, err := active.Policy(n)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return &Resolution{Policy: p, Subkey: n, Tier: TierActive}, nil
		}

		p, err = lookupDefaults(n)
		if err != nil {
			return nil, err
		}
		if p != nil {
			if err := copyInto(n, n, p); err != nil {
				return nil, err
			}
			return &Resolution{Policy: p, Subkey: n, Tier: TierNamedDefault}, nil
		}
	}

	p, err := active.Policy(DefaultSubkey)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return &Resolution{Policy: p, Subkey: DefaultSubkey, Tier: TierActive}, nil
	}

	p, err = lookupDefaults(DefaultSubkey)
	if err != nil {
		return nil, err
	}
	if p != nil {
		if err := copyInto(name, DefaultSubkey, p); err != nil {
			return nil, err
		}
		return &Resolution{Policy: p, Subkey: name, Tier: TierGenericDefault}, nil
	}

	return nil, nil
}

// Set writes p under subkey in the active file.
func (s *Store) Set(subkey string, p *Policy) error {
	doc, err := WritePolicy(s.Path, subkey, p)
	if err != nil {
		return err
	}
	if doc.Reencoded() {
		s.logger.Warn().Str("file", s.Path).Msg("policy file was re-encoded, comments and formatting were not kept")
	}
	return nil
}

func (s *Store) loadActive() (*Document, error) {
	doc, err := LoadDocument(s.Path)
	if err != nil {
		return nil, fmt.Errorf("loading policy file: %w", err)
	}
	return doc, nil
}

func (s *Store) loadDefaults() (*Document, error) {
	doc, err := LoadDocument(s.DefaultPath)
	if err != nil {
		return nil, fmt.Errorf("loading defaults file: %w", err)
	}
	return doc, nil
}

func (s *Store) copyInto(active *Document, subkey, from string, p *Policy) error {
	if err := active.SetPolicy(subkey, p); err != nil {
		return fmt.Errorf("copying policy %q: %w", subkey, err)
	}
	if err := active.Save(s.Path); err != nil {
		return err
	}

	s.logger.Info().
		Str("subkey", subkey).
		Str("from", from).
		Str("defaults", s.DefaultPath).
		Str("file", s.Path).
		Msg("copied retention policy from defaults file")
	if active.Reencoded() {
		s.logger.Warn().Str("file", s.Path).Msg("policy file was re-encoded, comments and formatting were not kept")
	}
	return nil
}
