// Package response turns decoded Sonar web api payloads into typed records.
//
// The api does not tag its payloads, so the record kind is sniffed from the
// fields present. Records keep every field they were built from.
package response

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnexpectedRecord is returned when a payload does not normalize into the
// record kind the caller asked for.
var ErrUnexpectedRecord = errors.New("unexpected record")

// A Record is the result of normalizing one payload.
type Record interface {
	record()
}

// Raw is a payload that matched no known record shape. It is passed through
// untouched.
type Raw map[string]interface{}

func (Raw) record() {}

// fields is the open field bag shared by every typed record.
type fields map[string]interface{}

// Get returns the raw value of a field and whether it was present.
func (f fields) Get(key string) (interface{}, bool) {
	v, ok := f[key]
	return v, ok
}

// Fields returns a copy of every field of the record.
func (f fields) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (f fields) str(key string) string {
	s, _ := f[key].(string)
	return s
}

func (f fields) object(key string) map[string]interface{} {
	m, _ := f[key].(map[string]interface{})
	return m
}

func (f fields) describe(kind string) string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "==%s==\n", kind)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, f[k])
	}
	return b.String()
}

// Validation is the answer of the credential check.
type Validation struct {
	fields
}

func (*Validation) record() {}

// Valid reports whether the remote accepted the credentials.
func (v *Validation) Valid() bool {
	if v == nil {
		return false
	}
	b, _ := v.fields["valid"].(bool)
	return b
}

func (v *Validation) String() string { return v.describe("Validation") }

// Component is a project, or any other component, returned by a search.
type Component struct {
	fields
}

func (*Component) record() {}

func (c *Component) Key() string              { return c.str("key") }
func (c *Component) Name() string             { return c.str("name") }
func (c *Component) Qualifier() string        { return c.str("qualifier") }
func (c *Component) Visibility() string       { return c.str("visibility") }
func (c *Component) Organization() string     { return c.str("organization") }
func (c *Component) LastAnalysisDate() string { return c.str("lastAnalysisDate") }
func (c *Component) Revision() string         { return c.str("revision") }

func (c *Component) String() string { return c.describe("Component") }

// Branch is a branch of a project.
type Branch struct {
	fields
}

func (*Branch) record() {}

func (b *Branch) Name() string         { return b.str("name") }
func (b *Branch) Type() string         { return b.str("type") }
func (b *Branch) MergeBranch() string  { return b.str("mergeBranch") }
func (b *Branch) AnalysisDate() string { return b.str("analysisDate") }

// IsMain reports whether the remote designates this branch as the default one.
func (b *Branch) IsMain() bool {
	v, _ := b.fields["isMain"].(bool)
	return v
}

// Status holds the quality gate and issue counters, kept as sent.
func (b *Branch) Status() map[string]interface{} { return b.object("status") }

// Commit holds the last analysed commit, kept as sent.
func (b *Branch) Commit() map[string]interface{} { return b.object("commit") }

func (b *Branch) String() string { return b.describe("Branch") }

// NewValidation, NewComponent and NewBranch build records without sniffing.
func NewValidation(raw map[string]interface{}) *Validation { return &Validation{fields: copyOf(raw)} }
func NewComponent(raw map[string]interface{}) *Component   { return &Component{fields: copyOf(raw)} }
func NewBranch(raw map[string]interface{}) *Branch         { return &Branch{fields: copyOf(raw)} }

func copyOf(raw map[string]interface{}) fields {
	f := make(fields, len(raw))
	for k, v := range raw {
		f[k] = v
	}
	return f
}
