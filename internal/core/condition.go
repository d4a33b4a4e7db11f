package core

import "fmt"

// MatchCondition implements spec.md §4.3's condition evaluation rules
// between a stored row value (row) and a condition value (cond):
//
//   - scalar vs scalar: strict equality including type
//   - interval condition vs scalar row: row value must fall within cond
//   - scalar condition vs interval row: cond must fall within row
//   - interval vs interval: the two ranges must intersect
//
// Any other pairing is a TypeError.
func MatchCondition(column string, row, cond Value) (bool, error) {
	switch {
	case isScalar(row.Kind) && isScalar(cond.Kind):
		if row.Kind != cond.Kind {
			return false, &TypeError{Column: column, Expected: row.Kind, Got: cond}
		}
		return row.Equal(cond), nil

	case isScalar(row.Kind) && isInterval(cond.Kind):
		return scalarInInterval(column, row, cond)

	case isInterval(row.Kind) && isScalar(cond.Kind):
		return scalarInInterval(column, cond, row)

	case isInterval(row.Kind) && isInterval(cond.Kind):
		return intervalsIntersect(column, row, cond)

	default:
		return false, &TypeError{Column: column, Expected: row.Kind, Got: cond}
	}
}

func isScalar(k DataType) bool {
	switch k {
	case DataTypeInt, DataTypeFloat, DataTypeChar, DataTypeString, DataTypeEmail, DataTypeSerial:
		return true
	default:
		return false
	}
}

func isInterval(k DataType) bool {
	return k == DataTypeCharInterval || k == DataTypeStringInterval
}

func scalarInInterval(column string, scalar, interval Value) (bool, error) {
	switch interval.Kind {
	case DataTypeCharInterval:
		if scalar.Kind != DataTypeChar {
			return false, &TypeError{Column: column, Expected: DataTypeChar, Got: scalar}
		}
		return scalar.C >= interval.LoC && scalar.C <= interval.HiC, nil
	case DataTypeStringInterval:
		if scalar.Kind != DataTypeString && scalar.Kind != DataTypeEmail {
			return false, &TypeError{Column: column, Expected: DataTypeString, Got: scalar}
		}
		return scalar.S >= interval.LoS && scalar.S <= interval.HiS, nil
	default:
		return false, fmt.Errorf("not an interval: %s", interval.Kind)
	}
}

func intervalsIntersect(column string, a, b Value) (bool, error) {
	if a.Kind != b.Kind {
		return false, &TypeError{Column: column, Expected: a.Kind, Got: b}
	}
	switch a.Kind {
	case DataTypeCharInterval:
		return a.LoC <= b.HiC && b.LoC <= a.HiC, nil
	case DataTypeStringInterval:
		return a.LoS <= b.HiS && b.LoS <= a.HiS, nil
	default:
		return false, fmt.Errorf("not an interval: %s", a.Kind)
	}
}
