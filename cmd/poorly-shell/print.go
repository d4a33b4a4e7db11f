package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
)

// printRows renders result rows as an aligned table, column names sorted
// alphabetically with widths computed from the widest cell in each column.
func printRows(rows []map[string]interface{}) {
	if len(rows) == 0 {
		color.New(color.Faint).Println("(0 rows)")
		return
	}

	var columns []string
	seen := make(map[string]bool)
	widths := make(map[string]int)
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
				widths[col] = len(col)
			}
		}
	}
	sort.Strings(columns)

	for _, row := range rows {
		for _, col := range columns {
			if val, ok := row[col]; ok {
				if n := len(fmt.Sprintf("%v", val)); n > widths[col] {
					widths[col] = n
				}
			}
		}
	}

	header := color.New(color.Bold)
	for i, col := range columns {
		if i > 0 {
			fmt.Print(" | ")
		}
		header.Printf("%-*s", widths[col], col)
	}
	fmt.Println()

	for i, col := range columns {
		if i > 0 {
			fmt.Print("-+-")
		}
		for j := 0; j < widths[col]; j++ {
			fmt.Print("-")
		}
	}
	fmt.Println()

	for _, row := range rows {
		for i, col := range columns {
			if i > 0 {
				fmt.Print(" | ")
			}
			val, ok := row[col]
			if !ok {
				val = "NULL"
			}
			fmt.Printf("%-*v", widths[col], val)
		}
		fmt.Println()
	}
}
