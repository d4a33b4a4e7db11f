package table

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tomasleon/poorly/internal/core"
	"github.com/tomasleon/poorly/internal/schema"
)

const (
	tombstoneLive byte = 0
	tombstoneDead byte = 1
)

// countingReader tracks how many bytes have been read through it so a
// caller can recover the file offset a row started at.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// encodeRow builds the on-disk representation of one row: a tombstone
// byte followed by each column's value in schema declaration order.
func encodeRow(table string, columns []schema.Column, values core.ColumnSet) ([]byte, error) {
	for name := range values {
		found := false
		for _, c := range columns {
			if c.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, &core.ExtraColumnError{Column: name, Table: table}
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(tombstoneLive)
	for _, c := range columns {
		v, ok := values[c.Name]
		if !ok {
			return nil, &core.MissingColumnError{Column: c.Name, Table: table}
		}
		if v.Kind != c.Type {
			coerced, err := v.Coerce(c.Type, c.Name)
			if err != nil {
				return nil, err
			}
			v = coerced
		}
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if err := v.EncodeTo(&buf); err != nil {
			return nil, &core.IOError{Err: err}
		}
	}
	return buf.Bytes(), nil
}

// decodeRow reads one row's tombstone byte and column values from r,
// returning how many bytes it consumed so the caller can compute the row's
// starting offset in the file.
func decodeRow(r io.Reader, columns []schema.Column) (byte, core.ColumnSet, int64, error) {
	cr := &countingReader{r: r}

	tomb := make([]byte, 1)
	if _, err := io.ReadFull(cr, tomb); err != nil {
		return 0, nil, cr.n, err
	}
	if tomb[0] != tombstoneLive && tomb[0] != tombstoneDead {
		return 0, nil, cr.n, fmt.Errorf("invalid tombstone byte 0x%02x", tomb[0])
	}

	values := make(core.ColumnSet, len(columns))
	for _, c := range columns {
		v, err := core.DecodeValue(cr, c.Type)
		if err != nil {
			return 0, nil, cr.n, err
		}
		values[c.Name] = v
	}
	return tomb[0], values, cr.n, nil
}
