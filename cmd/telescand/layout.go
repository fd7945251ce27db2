package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/view"
)

// layoutFile is the on-disk JSON shape a layout is declared in: one
// entry per column, naming its dotted path, value-index type, and any
// attributes (spec.md GLOSSARY "Layout"). Parsing record formats
// themselves is out of scope (spec.md §1 Non-goals "source readers");
// this is only the minimal declaration an operator supplies so `ingest`
// knows how to turn one JSON object's fields into view.Values.
type layoutFile struct {
	Name   string        `json:"name"`
	Fields []layoutField `json:"fields"`
}

type layoutField struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Attributes []string `json:"attributes,omitempty"`
}

func loadLayout(path string) (schema.Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schema.Layout{}, fmt.Errorf("read layout: %w", err)
	}
	var lf layoutFile
	if err := json.Unmarshal(raw, &lf); err != nil {
		return schema.Layout{}, fmt.Errorf("parse layout: %w", err)
	}
	layout := schema.Layout{Name: lf.Name, Fields: make([]schema.Field, len(lf.Fields))}
	for i, f := range lf.Fields {
		layout.Fields[i] = schema.Field{
			Name:       f.Name,
			Type:       f.Type,
			Offset:     i,
			Attributes: f.Attributes,
		}
	}
	return layout, nil
}

// decodeCell converts one JSON-decoded value into the view.Value its
// field's declared type expects. A nil input or type mismatch both
// return (nil, nil): the caller treats the cell as absent, matching a
// partition's own null-cell handling.
func decodeCell(fieldType string, raw any) (view.Value, error) {
	if raw == nil {
		return nil, nil
	}
	switch fieldType {
	case "addr":
		s, ok := raw.(string)
		if !ok {
			return nil, nil
		}
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return view.AddressFromNetIP(ip), nil
	case "subnet":
		s, ok := raw.(string)
		if !ok {
			return nil, nil
		}
		_, ipnet, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("invalid subnet %q: %w", s, err)
		}
		return view.SubnetFromIPNet(ipnet), nil
	case "string":
		s, ok := raw.(string)
		if !ok {
			return nil, nil
		}
		return view.String_(s), nil
	case "enum":
		s, ok := raw.(string)
		if !ok {
			return nil, nil
		}
		return view.Enum{Name: s}, nil
	case "bool":
		b, ok := raw.(bool)
		if !ok {
			return nil, nil
		}
		return view.Bool(b), nil
	case "int", "count":
		n, ok := raw.(float64)
		if !ok {
			return nil, nil
		}
		return view.Int64(int64(n)), nil
	case "real":
		n, ok := raw.(float64)
		if !ok {
			return nil, nil
		}
		return view.Real(n), nil
	case "duration":
		s, ok := raw.(string)
		if !ok {
			return nil, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return view.Duration(d), nil
	case "time":
		s, ok := raw.(string)
		if !ok {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return view.Timestamp(t), nil
	case "port":
		s, ok := raw.(string)
		if !ok {
			return nil, nil
		}
		parts := strings.SplitN(s, "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid port %q", s)
		}
		n, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", s, err)
		}
		return view.Port{Number: uint16(n), Proto: parts[1]}, nil
	default:
		return nil, nil
	}
}
