package retention

import "strings"

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindBool
	kindList
)

func (k fieldKind) String() string {
	switch k {
	case kindInt:
		return "integer"
	case kindBool:
		return "boolean"
	case kindList:
		return "list"
	default:
		return "string"
	}
}

type field struct {
	name string
	kind fieldKind
}

// fields lists every policy field in serialization order.
var fields = []field{
	{"keep_last", kindInt},
	{"keep_hourly", kindInt},
	{"keep_daily", kindInt},
	{"keep_weekly", kindInt},
	{"keep_monthly", kindInt},
	{"keep_yearly", kindInt},
	{"keep_tag", kindList},
	{"keep_within", kindString},
	{"keep_within_hourly", kindString},
	{"keep_within_daily", kindString},
	{"keep_within_weekly", kindString},
	{"keep_within_monthly", kindString},
	{"keep_within_yearly", kindString},
	{"prune", kindBool},
	{"dry_run", kindBool},
}

var fieldKinds = func() map[string]fieldKind {
	m := make(map[string]fieldKind, len(fields))
	for _, f := range fields {
		m[f.name] = f.kind
	}
	return m
}()

func lookupField(name string) (fieldKind, bool) {
	kind, ok := fieldKinds[name]
	return kind, ok
}

// flagName converts a field name to its flag and document key form.
func flagName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// fieldName converts a flag or document key to its field name.
func fieldName(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}
