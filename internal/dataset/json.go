package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// DecodeJSON reads a frame from one of two layouts.
//
// Column orient maps each column to its cells, either keyed by row label or
// as a list:
//
//	{"question": {"0": "q0", "1": "q1"}, "predictions": ["p0", "p1"]}
//
// Split orient carries the cells row by row:
//
//	{"columns": ["question"], "data": [["q0"], ["q1"]], "index": [0, 1]}
//
// A document with a top-level "data" key is read as split orient. Key order
// of the document is preserved for both columns and rows.
func DecodeJSON(data []byte) (*Frame, error) {
	keys, values, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i, k := range keys {
		if k == "data" {
			return decodeSplit(keys, values, i)
		}
	}
	return decodeColumns(keys, values)
}

func decodeColumns(keys []string, values []json.RawMessage) (*Frame, error) {
	f := New()
	type cells struct {
		labels []string
		byKey  map[string]any
	}
	parsed := make([]cells, len(keys))
	var order []string
	seen := make(map[string]bool)

	for i, raw := range values {
		raw = bytes.TrimSpace(raw)
		var c cells
		switch {
		case len(raw) > 0 && raw[0] == '{':
			labels, rawCells, err := decodeObject(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: column %q: %v", ErrMalformed, keys[i], err)
			}
			c.labels = labels
			c.byKey = make(map[string]any, len(labels))
			for j, l := range labels {
				v, err := decodeValue(rawCells[j])
				if err != nil {
					return nil, fmt.Errorf("%w: column %q row %q: %v", ErrMalformed, keys[i], l, err)
				}
				c.byKey[l] = v
			}
		case len(raw) > 0 && raw[0] == '[':
			var list []any
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, fmt.Errorf("%w: column %q: %v", ErrMalformed, keys[i], err)
			}
			c.byKey = make(map[string]any, len(list))
			for j, v := range list {
				l := strconv.Itoa(j)
				c.labels = append(c.labels, l)
				c.byKey[l] = v
			}
		default:
			return nil, fmt.Errorf("%w: column %q is neither an object nor a list", ErrMalformed, keys[i])
		}
		parsed[i] = c
		for _, l := range c.labels {
			if !seen[l] {
				seen[l] = true
				order = append(order, l)
			}
		}
		f.AddColumn(keys[i], nil)
	}

	for _, l := range order {
		row := make(map[string]any, len(keys))
		for i, k := range keys {
			row[k] = parsed[i].byKey[l]
		}
		if err := f.AppendRow(l, row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func decodeSplit(keys []string, values []json.RawMessage, dataAt int) (*Frame, error) {
	var columns []string
	var index []any
	for i, k := range keys {
		var err error
		switch k {
		case "columns":
			err = json.Unmarshal(values[i], &columns)
		case "index":
			err = json.Unmarshal(values[i], &index)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, k, err)
		}
	}

	var rows [][]any
	if err := json.Unmarshal(values[dataAt], &rows); err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrMalformed, err)
	}
	if columns == nil {
		return nil, fmt.Errorf("%w: split document without columns", ErrMalformed)
	}
	if index != nil && len(index) != len(rows) {
		return nil, fmt.Errorf("%w: index has %d labels, data has %d rows", ErrMalformed, len(index), len(rows))
	}

	f := New(columns...)
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrMalformed, i, len(r), len(columns))
		}
		label := strconv.Itoa(i)
		if index != nil {
			label = labelString(index[i])
		}
		row := make(map[string]any, len(columns))
		for j, c := range columns {
			row[c] = r[j]
		}
		if err := f.AppendRow(label, row); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return f, nil
}

// EncodeJSON writes f in column orient keyed by row label, preserving
// column and row order.
func EncodeJSON(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for ci, c := range f.columns {
		if ci > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, c); err != nil {
			return nil, err
		}
		buf.WriteString(":{")
		for ri, label := range f.index {
			if ri > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(&buf, label); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			v := f.data[c][ri]
			if IsNull(v) {
				v = nil
			}
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("dataset: encode %q row %q: %w", c, label, err)
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeObject reads a JSON object and returns its keys in document order.
func decodeObject(data []byte) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	var values []json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, fmt.Errorf("trailing data after object")
	}
	return keys, values, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	var v any
	err := json.Unmarshal(raw, &v)
	return v, err
}

func labelString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
