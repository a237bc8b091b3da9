// Package retention models restic forget policies and resolves them from
// layered TOML policy files.
package retention

import (
	"strconv"

	"github.com/kballard/go-shellquote"
)

// DefaultSubkey names the shared fallback policy section.
const DefaultSubkey = "default"

// Policy is a restic forget rule set. Nil pointers mean "not set" and are
// left to restic's own defaults.
type Policy struct {
	KeepLast    *int
	KeepHourly  *int
	KeepDaily   *int
	KeepWeekly  *int
	KeepMonthly *int
	KeepYearly  *int

	KeepTag []string

	KeepWithin        *string
	KeepWithinHourly  *string
	KeepWithinDaily   *string
	KeepWithinWeekly  *string
	KeepWithinMonthly *string
	KeepWithinYearly  *string

	Prune  bool
	DryRun bool

	// Extra holds options this package does not model, in first-seen order.
	Extra []Option
}

// Option is a flag or document key without a dedicated Policy field.
type Option struct {
	Name  string // underscore form
	Value string
	// IsBool marks options that came from --no-<name> or a TOML boolean.
	IsBool bool
	Bool   bool
}

// Dry reports whether the policy is a dry run.
func (p *Policy) Dry() bool {
	return p.DryRun
}

// SetDry sets DryRun and forces Prune to the opposite value.
func (p *Policy) SetDry(v bool) {
	p.DryRun = v
	p.Prune = !v
}

// Clone returns a deep copy.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	c := *p
	for _, f := range fields {
		switch f.kind {
		case kindInt:
			if v := *p.intField(f.name); v != nil {
				n := *v
				*c.intField(f.name) = &n
			}
		case kindString:
			if v := *p.stringField(f.name); v != nil {
				s := *v
				*c.stringField(f.name) = &s
			}
		}
	}
	if p.KeepTag != nil {
		c.KeepTag = append([]string{}, p.KeepTag...)
	}
	if p.Extra != nil {
		c.Extra = append([]Option{}, p.Extra...)
	}
	return &c
}

// Args renders the policy as restic forget arguments, known fields first.
// False booleans are omitted rather than rendered as --no-<flag>.
func (p *Policy) Args() []string {
	var args []string
	for _, f := range fields {
		flag := "--" + flagName(f.name)
		switch f.kind {
		case kindInt:
			if v := *p.intField(f.name); v != nil {
				args = append(args, flag, strconv.Itoa(*v))
			}
		case kindString:
			if v := *p.stringField(f.name); v != nil {
				args = append(args, flag, *v)
			}
		case kindList:
			for _, v := range *p.listField(f.name) {
				args = append(args, flag, v)
			}
		case kindBool:
			if *p.boolField(f.name) {
				args = append(args, flag)
			}
		}
	}
	for _, o := range p.Extra {
		flag := "--" + flagName(o.Name)
		if o.IsBool {
			if o.Bool {
				args = append(args, flag)
			}
			continue
		}
		args = append(args, flag, o.Value)
	}
	return args
}

// String renders the policy as a shell-quoted argument string.
func (p *Policy) String() string {
	return shellquote.Join(p.Args()...)
}

// Option returns the extra option with the given underscore name.
func (p *Policy) Option(name string) (Option, bool) {
	for _, o := range p.Extra {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

func (p *Policy) setExtra(o Option) {
	for i := range p.Extra {
		if p.Extra[i].Name == o.Name {
			p.Extra[i] = o
			return
		}
	}
	p.Extra = append(p.Extra, o)
}

func (p *Policy) setBool(name string, v bool) {
	if kind, ok := lookupField(name); ok && kind == kindBool {
		*p.boolField(name) = v
		return
	}
	p.setExtra(Option{Name: name, IsBool: true, Bool: v})
}

func (p *Policy) intField(name string) **int {
	switch name {
	case "keep_last":
		return &p.KeepLast
	case "keep_hourly":
		return &p.KeepHourly
	case "keep_daily":
		return &p.KeepDaily
	case "keep_weekly":
		return &p.KeepWeekly
	case "keep_monthly":
		return &p.KeepMonthly
	case "keep_yearly":
		return &p.KeepYearly
	}
	return nil
}

func (p *Policy) stringField(name string) **string {
	switch name {
	case "keep_within":
		return &p.KeepWithin
	case "keep_within_hourly":
		return &p.KeepWithinHourly
	case "keep_within_daily":
		return &p.KeepWithinDaily
	case "keep_within_weekly":
		return &p.KeepWithinWeekly
	case "keep_within_monthly":
		return &p.KeepWithinMonthly
	case "keep_within_yearly":
		return &p.KeepWithinYearly
	}
	return nil
}

func (p *Policy) listField(name string) *[]string {
	if name == "keep_tag" {
		return &p.KeepTag
	}
	return nil
}

func (p *Policy) boolField(name string) *bool {
	switch name {
	case "prune":
		return &p.Prune
	case "dry_run":
		return &p.DryRun
	}
	return nil
}
