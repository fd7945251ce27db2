// Package schema describes record layouts: the named, typed fields of
// one kind of telemetry event (spec.md GLOSSARY "Layout", "Qualified
// field").
package schema

import "strings"

// Field is one column of a Layout.
type Field struct {
	Name       string   // dotted path, e.g. "net.src_ip"
	Type       string   // e.g. "addr", "subnet", "string", "list<string>", "enum", "bool", "int", "real", "duration", "time", "port"
	Offset     int      // column index within the layout
	Attributes []string // e.g. "timestamp", "skip"
}

// HasAttribute reports whether f carries the named attribute.
func (f Field) HasAttribute(name string) bool {
	for _, a := range f.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// QualifiedName is "<layout>.<field>", the key synopses and the
// meta-index group by.
func (f Field) QualifiedName(layout string) string {
	return layout + "." + f.Name
}

// Layout is the record type describing one kind of event.
type Layout struct {
	Name   string
	Fields []Field
}

// FieldByName returns the field with an exact dotted-path match.
func (l Layout) FieldByName(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldsByType returns every field whose Type matches t.
func (l Layout) FieldsByType(t string) []Field {
	var out []Field
	for _, f := range l.Fields {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// FieldsByAttribute returns every field carrying the named attribute.
func (l Layout) FieldsByAttribute(attr string) []Field {
	var out []Field
	for _, f := range l.Fields {
		if f.HasAttribute(attr) {
			out = append(out, f)
		}
	}
	return out
}

// FieldsBySuffix returns every field whose qualified name ends with
// suffix (spec.md §4.5 "#field").
func (l Layout) FieldsBySuffix(suffix string) []Field {
	var out []Field
	for _, f := range l.Fields {
		if strings.HasSuffix(f.QualifiedName(l.Name), suffix) {
			out = append(out, f)
		}
	}
	return out
}
