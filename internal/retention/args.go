package retention

import (
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ParseArgs builds a Policy from restic forget style arguments. The
// arguments are joined and re-split with POSIX shell rules, so both
// ParseArgs("--keep-last", "3") and ParseArgs("--keep-last=3 --prune")
// work. Tokens that do not start with "--" are ignored and unknown flags
// are kept in Policy.Extra.
func ParseArgs(args ...string) (*Policy, error) {
	joined := strings.Join(args, " ")
	tokens, err := shellquote.Split(joined)
	if err != nil {
		return nil, &InvalidValueError{Value: joined, Err: err}
	}

	p := &Policy{}
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !strings.HasPrefix(tok, "--") || tok == "--" {
			continue
		}

		flag, inline, hasInline := strings.Cut(tok[2:], "=")
		name := fieldName(flag)

		if stripped, ok := strings.CutPrefix(name, "no_"); ok {
			kind, known := lookupField(stripped)
			if !known || kind == kindBool {
				v := false
				if hasInline {
					b, err := strconv.ParseBool(inline)
					if err != nil {
						return nil, &InvalidValueError{Field: flag, Value: inline, Err: err}
					}
					v = !b
				}
				p.setBool(stripped, v)
				continue
			}
		}

		kind, known := lookupField(name)
		if known && kind == kindBool {
			v := true
			if hasInline {
				b, err := strconv.ParseBool(inline)
				if err != nil {
					return nil, &InvalidValueError{Field: flag, Value: inline, Err: err}
				}
				v = b
			}
			p.setBool(name, v)
			continue
		}

		value := inline
		if !hasInline {
			if i+1 >= len(tokens) {
				return nil, &MissingValueError{Flag: "--" + flag}
			}
			i++
			value = tokens[i]
		}

		if !known {
			p.setExtra(Option{Name: name, Value: value})
			continue
		}
		if err := p.setFromString(name, kind, value); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Policy) setFromString(name string, kind fieldKind, value string) error {
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return &InvalidValueError{Field: flagName(name), Value: value, Err: err}
		}
		*p.intField(name) = &n
	case kindList:
		f := p.listField(name)
		*f = append(*f, value)
	case kindString:
		v := value
		*p.stringField(name) = &v
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &InvalidValueError{Field: flagName(name), Value: value, Err: err}
		}
		*p.boolField(name) = b
	}
	return nil
}
