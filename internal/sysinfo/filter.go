package sysinfo

import (
	"fmt"
	"strings"
)

// Filter selects processes.
type Filter interface {
	Match(p *Process) bool
}

// FilterField names the process attribute a TextFilter inspects.
type FilterField int

const (
	// FieldAny matches against every identity attribute.
	FieldAny FilterField = iota
	FieldName
	FieldPath
	FieldCommandLine
	FieldUser
	FieldDescription
)

var filterFieldNames = map[string]FilterField{
	"any":         FieldAny,
	"name":        FieldName,
	"path":        FieldPath,
	"cmd":         FieldCommandLine,
	"cmdline":     FieldCommandLine,
	"user":        FieldUser,
	"description": FieldDescription,
	"desc":        FieldDescription,
}

// TextFilter matches processes whose field contains Text, ignoring case.
type TextFilter struct {
	Field FilterField
	Text  string
}

// Match implements Filter.
func (f TextFilter) Match(p *Process) bool {
	needle := strings.ToLower(f.Text)
	if needle == "" {
		return true
	}
	for _, v := range f.values(p) {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func (f TextFilter) values(p *Process) []string {
	switch f.Field {
	case FieldName:
		return []string{p.FileName}
	case FieldPath:
		return []string{p.FilePath}
	case FieldCommandLine:
		return []string{p.CommandLine}
	case FieldUser:
		return []string{p.UserName}
	case FieldDescription:
		return []string{p.Description}
	default:
		return []string{p.FileName, p.FilePath, p.CommandLine, p.UserName, p.Description}
	}
}

// ParseFilter builds a TextFilter from "field:text". Without a known field
// prefix the whole expression is matched against every attribute.
func ParseFilter(expr string) (TextFilter, error) {
	field, text, ok := strings.Cut(expr, ":")
	if !ok {
		return TextFilter{Field: FieldAny, Text: expr}, nil
	}
	f, known := filterFieldNames[strings.ToLower(strings.TrimSpace(field))]
	if !known {
		return TextFilter{}, fmt.Errorf("unknown filter field %q", field)
	}
	return TextFilter{Field: f, Text: text}, nil
}

// AllOf matches processes accepted by every filter.
type AllOf []Filter

// Match implements Filter.
func (a AllOf) Match(p *Process) bool {
	for _, f := range a {
		if !f.Match(p) {
			return false
		}
	}
	return true
}

// Select returns the processes accepted by f. A nil filter accepts everything.
func Select(processes []*Process, f Filter) []*Process {
	out := make([]*Process, 0, len(processes))
	for _, p := range processes {
		if f == nil || f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}
