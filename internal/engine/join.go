package engine

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tomasleon/poorly/internal/core"
)

type joinPair struct {
	left, right string
}

func splitQualified(s string) (string, string, error) {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return "", "", fmt.Errorf("expected a qualified table.column name, got %q", s)
	}
	return s[:i], s[i+1:], nil
}

func resolveJoinPairs(table1, table2 string, on map[string]string) ([]joinPair, error) {
	if len(on) == 0 {
		return nil, fmt.Errorf("join requires at least one join key")
	}
	pairs := make([]joinPair, 0, len(on))
	for left, right := range on {
		lt, lc, err := splitQualified(left)
		if err != nil {
			return nil, err
		}
		rt, rc, err := splitQualified(right)
		if err != nil {
			return nil, err
		}
		if lt != table1 || rt != table2 {
			return nil, fmt.Errorf("join key %s = %s does not reference %s and %s", left, right, table1, table2)
		}
		pairs = append(pairs, joinPair{left: lc, right: rc})
	}
	return pairs, nil
}

// valueKey encodes v into a byte-exact, kind-tagged key so values of
// different kinds never collide in the join hash index.
func valueKey(v core.Value) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(v.Kind))
	if err := v.EncodeTo(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func rowKey(table string, row core.ColumnSet, cols []string) (string, error) {
	var buf bytes.Buffer
	for _, c := range cols {
		v, ok := row[c]
		if !ok {
			return "", &core.ColumnNotFoundError{Column: c, Table: table}
		}
		k, err := valueKey(v)
		if err != nil {
			return "", err
		}
		buf.WriteString(k)
	}
	return buf.String(), nil
}

func qualify(table string, row core.ColumnSet, out core.ColumnSet) {
	for c, v := range row {
		out[table+"."+c] = v
	}
}

func matchQualifiedConditions(row, conditions core.ColumnSet) (bool, error) {
	for col, cond := range conditions {
		v, ok := row[col]
		if !ok {
			return false, &core.ColumnNotFoundError{Column: col, Table: "<join>"}
		}
		ok, err := core.MatchCondition(col, v, cond)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func projectQualified(row core.ColumnSet, projection []string) core.ColumnSet {
	if len(projection) == 0 {
		return row
	}
	out := make(core.ColumnSet, len(projection))
	for _, c := range projection {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

// hashJoin builds a hash index over rows2 keyed by the join columns, then
// probes it once per row in rows1 — O(len(rows1)+len(rows2)) rather than
// the O(len(rows1)*len(rows2)) a nested-loop join would cost.
func hashJoin(table1 string, rows1 []core.ColumnSet, table2 string, rows2 []core.ColumnSet, on map[string]string, conditions core.ColumnSet, projection []string) ([]core.ColumnSet, error) {
	pairs, err := resolveJoinPairs(table1, table2, on)
	if err != nil {
		return nil, err
	}
	leftCols := make([]string, len(pairs))
	rightCols := make([]string, len(pairs))
	for i, p := range pairs {
		leftCols[i] = p.left
		rightCols[i] = p.right
	}

	index := make(map[string][]core.ColumnSet, len(rows2))
	for _, r := range rows2 {
		k, err := rowKey(table2, r, rightCols)
		if err != nil {
			return nil, err
		}
		index[k] = append(index[k], r)
	}

	var out []core.ColumnSet
	for _, r1 := range rows1 {
		k, err := rowKey(table1, r1, leftCols)
		if err != nil {
			return nil, err
		}
		for _, r2 := range index[k] {
			merged := make(core.ColumnSet, len(r1)+len(r2))
			qualify(table1, r1, merged)
			qualify(table2, r2, merged)

			ok, err := matchQualifiedConditions(merged, conditions)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			out = append(out, projectQualified(merged, projection))
		}
	}
	return out, nil
}
