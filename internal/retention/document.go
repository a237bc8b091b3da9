package retention

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
)

// Document is a TOML policy file. Policies live under restic.forget.<subkey>.
// Edits made through SetPolicy keep unrelated text, comments included.
type Document struct {
	path      string
	raw       []byte
	data      map[string]any
	reencoded bool
}

// LoadDocument reads the policy file at path. A missing file yields an empty
// document.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Document{path: path, data: map[string]any{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	doc, err := ParseDocument(data)
	if err != nil {
		var perr *DocumentParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, err
	}
	doc.path = path
	return doc, nil
}

// ParseDocument parses raw TOML.
func ParseDocument(data []byte) (*Document, error) {
	m, err := decode(data)
	if err != nil {
		return nil, err
	}
	return &Document{raw: data, data: m}, nil
}

func decode(data []byte) (map[string]any, error) {
	m := map[string]any{}
	if err := toml.Unmarshal(data, &m); err != nil {
		perr := &DocumentParseError{Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}
	return m, nil
}

// Path returns the file the document was loaded from, if any.
func (d *Document) Path() string {
	return d.path
}

// Bytes returns the current document text.
func (d *Document) Bytes() []byte {
	return d.raw
}

// Reencoded reports whether the last SetPolicy had to rebuild the whole
// document from its data, dropping comments and formatting.
func (d *Document) Reencoded() bool {
	return d.reencoded
}

// Subkeys lists the policy sections present, sorted.
func (d *Document) Subkeys() []string {
	forget, ok := d.forgetTable()
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(forget))
	for k, v := range forget {
		if _, ok := v.(map[string]any); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (d *Document) forgetTable() (map[string]any, bool) {
	restic, ok := d.data["restic"].(map[string]any)
	if !ok {
		return nil, false
	}
	forget, ok := restic["forget"].(map[string]any)
	return forget, ok
}

// Policy returns the policy stored under subkey. A missing, empty or
// non-table section yields nil without an error.
func (d *Document) Policy(subkey string) (*Policy, error) {
	forget, ok := d.forgetTable()
	if !ok {
		return nil, nil
	}
	section, ok := forget[subkey].(map[string]any)
	if !ok || len(section) == 0 {
		return nil, nil
	}
	p, err := policyFromTable(section)
	if err != nil {
		return nil, fmt.Errorf("reading policy %q: %w", subkey, err)
	}
	return p, nil
}

func policyFromTable(section map[string]any) (*Policy, error) {
	keys := make([]string, 0, len(section))
	for k := range section {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := &Policy{}
	for _, key := range keys {
		raw := section[key]
		name := fieldName(key)
		kind, known := lookupField(name)
		if !known {
			if b, ok := raw.(bool); ok {
				p.setExtra(Option{Name: name, IsBool: true, Bool: b})
				continue
			}
			p.setExtra(Option{Name: name, Value: toString(raw)})
			continue
		}

		switch kind {
		case kindBool:
			*p.boolField(name) = toBool(raw)
		case kindInt:
			n, err := toInt(raw)
			if err != nil {
				return nil, &InvalidValueError{Field: key, Value: toString(raw), Err: err}
			}
			*p.intField(name) = &n
		case kindList:
			list, err := toStringList(raw)
			if err != nil {
				return nil, &InvalidValueError{Field: key, Value: toString(raw), Err: err}
			}
			*p.listField(name) = list
		case kindString:
			s := toString(raw)
			*p.stringField(name) = &s
		}
	}
	return p, nil
}

// toBool treats any non-empty value as true when it is not a recognizable
// boolean.
func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	if b, err := cast.ToBoolE(v); err == nil {
		return b
	}
	return v != nil
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int64:
		if t > math.MaxInt || t < math.MinInt {
			return 0, fmt.Errorf("%d is out of range", t)
		}
		return int(t), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("%v is not a whole number", t)
		}
		// float64(math.MaxInt) rounds up to 2^63, which is already out of range.
		if t >= math.MaxInt || t < math.MinInt {
			return 0, fmt.Errorf("%v is out of range", t)
		}
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	case bool:
		return 0, fmt.Errorf("boolean is not an integer")
	}
	return cast.ToIntE(v)
}

// toStringList returns nil for an empty array so that an empty keep-tag
// reads back the same as an unset one.
func toStringList(v any) ([]string, error) {
	if s, ok := v.(string); ok {
		return []string{s}, nil
	}
	if items, ok := v.([]any); ok {
		if len(items) == 0 {
			return nil, nil
		}
		return cast.ToStringSliceE(items)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func toString(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// SetPolicy replaces the restic.forget.<subkey> table with p. An existing
// [restic.forget.<subkey>] block is rewritten in place; otherwise a new block
// is appended. When the section cannot be edited textually (for example it
// is an inline table) the document is re-encoded and Reencoded reports true.
func (d *Document) SetPolicy(subkey string, p *Policy) error {
	d.reencoded = false

	block, err := renderBlock(subkey, p)
	if err != nil {
		return err
	}

	raw := spliceBlock(d.raw, []string{"restic", "forget", subkey}, block)
	if m, err := decode(raw); err == nil {
		if section, ok := lookupSection(m, subkey); ok && sameKeys(section, policyTable(p)) {
			d.raw = raw
			d.data = m
			return nil
		}
	}

	return d.reencode(subkey, p)
}

func lookupSection(m map[string]any, subkey string) (map[string]any, bool) {
	restic, ok := m["restic"].(map[string]any)
	if !ok {
		return nil, false
	}
	forget, ok := restic["forget"].(map[string]any)
	if !ok {
		return nil, false
	}
	section, ok := forget[subkey].(map[string]any)
	return section, ok
}

func sameKeys(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func (d *Document) reencode(subkey string, p *Policy) error {
	restic, ok := d.data["restic"]
	if !ok {
		restic = map[string]any{}
		d.data["restic"] = restic
	}
	resticTable, ok := restic.(map[string]any)
	if !ok {
		return fmt.Errorf("restic is not a table")
	}
	forget, ok := resticTable["forget"]
	if !ok {
		forget = map[string]any{}
		resticTable["forget"] = forget
	}
	forgetTable, ok := forget.(map[string]any)
	if !ok {
		return fmt.Errorf("restic.forget is not a table")
	}
	forgetTable[subkey] = policyTable(p)

	raw, err := toml.Marshal(d.data)
	if err != nil {
		return fmt.Errorf("encoding policy file: %w", err)
	}
	m, err := decode(raw)
	if err != nil {
		return fmt.Errorf("re-reading encoded policy file: %w", err)
	}
	d.raw = raw
	d.data = m
	d.reencoded = true
	return nil
}

// Save writes the document to path, creating parent directories.
func (d *Document) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating policy directory: %w", err)
		}
	}
	if err := os.WriteFile(path, d.raw, 0o644); err != nil { //nolint:gosec // policy files are not secret
		return fmt.Errorf("writing policy file: %w", err)
	}
	d.path = path
	return nil
}

// WritePolicy stores p under subkey in the policy file at path, creating the
// file if needed.
func WritePolicy(path, subkey string, p *Policy) (*Document, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	if err := doc.SetPolicy(subkey, p); err != nil {
		return nil, err
	}
	if err := doc.Save(path); err != nil {
		return nil, err
	}
	return doc, nil
}

// policyKeys is the on-disk layout of the known fields. Field order is the
// output order.
type policyKeys struct {
	KeepLast          *int     `toml:"keep-last,omitempty"`
	KeepHourly        *int     `toml:"keep-hourly,omitempty"`
	KeepDaily         *int     `toml:"keep-daily,omitempty"`
	KeepWeekly        *int     `toml:"keep-weekly,omitempty"`
	KeepMonthly       *int     `toml:"keep-monthly,omitempty"`
	KeepYearly        *int     `toml:"keep-yearly,omitempty"`
	KeepTag           []string `toml:"keep-tag"`
	KeepWithin        *string  `toml:"keep-within,omitempty"`
	KeepWithinHourly  *string  `toml:"keep-within-hourly,omitempty"`
	KeepWithinDaily   *string  `toml:"keep-within-daily,omitempty"`
	KeepWithinWeekly  *string  `toml:"keep-within-weekly,omitempty"`
	KeepWithinMonthly *string  `toml:"keep-within-monthly,omitempty"`
	KeepWithinYearly  *string  `toml:"keep-within-yearly,omitempty"`
	Prune             bool     `toml:"prune"`
	DryRun            bool     `toml:"dry-run"`
}

func newPolicyKeys(p *Policy) policyKeys {
	tags := p.KeepTag
	if tags == nil {
		tags = []string{}
	}
	return policyKeys{
		KeepLast:          p.KeepLast,
		KeepHourly:        p.KeepHourly,
		KeepDaily:         p.KeepDaily,
		KeepWeekly:        p.KeepWeekly,
		KeepMonthly:       p.KeepMonthly,
		KeepYearly:        p.KeepYearly,
		KeepTag:           tags,
		KeepWithin:        p.KeepWithin,
		KeepWithinHourly:  p.KeepWithinHourly,
		KeepWithinDaily:   p.KeepWithinDaily,
		KeepWithinWeekly:  p.KeepWithinWeekly,
		KeepWithinMonthly: p.KeepWithinMonthly,
		KeepWithinYearly:  p.KeepWithinYearly,
		Prune:             p.Prune,
		DryRun:            p.DryRun,
	}
}

func extraValue(o Option) any {
	if o.IsBool {
		return o.Bool
	}
	return o.Value
}

// policyTable is the generic form of p used when re-encoding a document.
func policyTable(p *Policy) map[string]any {
	t := map[string]any{
		"keep-tag": append([]string{}, p.KeepTag...),
		"prune":    p.Prune,
		"dry-run":  p.DryRun,
	}
	for _, f := range fields {
		switch f.kind {
		case kindInt:
			if v := *p.intField(f.name); v != nil {
				t[flagName(f.name)] = int64(*v)
			}
		case kindString:
			if v := *p.stringField(f.name); v != nil {
				t[flagName(f.name)] = *v
			}
		}
	}
	for _, o := range p.Extra {
		t[flagName(o.Name)] = extraValue(o)
	}
	return t
}

// renderBlock renders the [restic.forget.<subkey>] header and body.
func renderBlock(subkey string, p *Policy) ([]byte, error) {
	key, err := tomlKey(subkey)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[restic.forget.%s]\n", key)

	body, err := toml.Marshal(newPolicyKeys(p))
	if err != nil {
		return nil, fmt.Errorf("encoding policy: %w", err)
	}
	buf.Write(body)

	// Extras are marshaled one at a time to keep their order.
	for _, o := range p.Extra {
		line, err := toml.Marshal(map[string]any{flagName(o.Name): extraValue(o)})
		if err != nil {
			return nil, fmt.Errorf("encoding option %s: %w", o.Name, err)
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// tomlKey returns subkey as a TOML key, quoted when it is not a bare key.
func tomlKey(subkey string) (string, error) {
	out, err := toml.Marshal(map[string]int{subkey: 0})
	if err != nil {
		return "", fmt.Errorf("encoding key %q: %w", subkey, err)
	}
	key, _, ok := strings.Cut(strings.TrimSpace(string(out)), " = ")
	if !ok {
		return "", fmt.Errorf("encoding key %q", subkey)
	}
	return key, nil
}
