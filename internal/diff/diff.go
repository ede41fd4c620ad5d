// Package diff computes line diffs between two reports.
package diff

import (
	"fmt"
	"strings"
)

type Op byte

const (
	Equal  Op = ' '
	Insert Op = '+'
	Delete Op = '-'
)

type Line struct {
	Op   Op
	Text string
	// OldNo and NewNo are 1-based line numbers; 0 when the line does not
	// exist on that side.
	OldNo int
	NewNo int
}

// maxCells bounds the LCS table. Larger middles fall back to replacing
// the whole changed block.
const maxCells = 4 << 20

// Lines returns the edit script turning old into new, based on the longest
// common subsequence of lines. The common prefix and suffix are matched
// before the table is built.
func Lines(old, new []string) []Line {
	pre := 0
	for pre < len(old) && pre < len(new) && old[pre] == new[pre] {
		pre++
	}
	suf := 0
	for suf < len(old)-pre && suf < len(new)-pre && old[len(old)-1-suf] == new[len(new)-1-suf] {
		suf++
	}

	out := make([]Line, 0, len(old)+len(new)-pre-suf)
	for i := 0; i < pre; i++ {
		out = append(out, Line{Op: Equal, Text: old[i], OldNo: i + 1, NewNo: i + 1})
	}
	a, b := old[pre:len(old)-suf], new[pre:len(new)-suf]
	if len(a)*len(b) > maxCells {
		out = append(out, replace(a, b, pre)...)
	} else {
		out = append(out, middle(a, b, pre)...)
	}
	for k := suf; k > 0; k-- {
		i, j := len(old)-k, len(new)-k
		out = append(out, Line{Op: Equal, Text: old[i], OldNo: i + 1, NewNo: j + 1})
	}
	return out
}

// middle diffs a and b, which start at line offset+1 on both sides.
func middle(a, b []string, offset int) []Line {
	table := lcsTable(a, b)

	var out []Line
	i, j := len(a), len(b)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			out = append(out, Line{Op: Equal, Text: a[i-1], OldNo: offset + i, NewNo: offset + j})
			i--
			j--
		case j > 0 && (i == 0 || table[i][j-1] >= table[i-1][j]):
			out = append(out, Line{Op: Insert, Text: b[j-1], NewNo: offset + j})
			j--
		default:
			out = append(out, Line{Op: Delete, Text: a[i-1], OldNo: offset + i})
			i--
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

func replace(a, b []string, offset int) []Line {
	out := make([]Line, 0, len(a)+len(b))
	for i, text := range a {
		out = append(out, Line{Op: Delete, Text: text, OldNo: offset + i + 1})
	}
	for j, text := range b {
		out = append(out, Line{Op: Insert, Text: text, NewNo: offset + j + 1})
	}
	return out
}

func lcsTable(a, b []string) [][]int {
	table := make([][]int, len(a)+1)
	for i := range table {
		table[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				table[i][j] = table[i-1][j-1] + 1
			case table[i-1][j] >= table[i][j-1]:
				table[i][j] = table[i-1][j]
			default:
				table[i][j] = table[i][j-1]
			}
		}
	}
	return table
}

// Stats counts inserted and deleted lines.
func Stats(lines []Line) (added, removed int) {
	for _, l := range lines {
		switch l.Op {
		case Insert:
			added++
		case Delete:
			removed++
		}
	}
	return added, removed
}

// Unified renders old and new as a unified diff with context lines around
// each change. Identical inputs render as "".
func Unified(oldName, newName, old, new string, context int) string {
	lines := Lines(split(old), split(new))
	if added, removed := Stats(lines); added == 0 && removed == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", oldName, newName)
	for _, h := range hunks(lines, context) {
		writeHunk(&sb, lines[h[0]:h[1]])
	}
	return sb.String()
}

func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// hunks returns [start, end) ranges of lines that contain a change plus up
// to context equal lines on either side; overlapping ranges merge.
func hunks(lines []Line, context int) [][2]int {
	var out [][2]int
	for i, l := range lines {
		if l.Op == Equal {
			continue
		}
		start, end := max(0, i-context), min(len(lines), i+context+1)
		if n := len(out); n > 0 && start <= out[n-1][1] {
			out[n-1][1] = max(out[n-1][1], end)
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func writeHunk(sb *strings.Builder, lines []Line) {
	oldStart, newStart, oldCount, newCount := 0, 0, 0, 0
	for _, l := range lines {
		if l.OldNo > 0 {
			if oldStart == 0 {
				oldStart = l.OldNo
			}
			oldCount++
		}
		if l.NewNo > 0 {
			if newStart == 0 {
				newStart = l.NewNo
			}
			newCount++
		}
	}
	fmt.Fprintf(sb, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
	for _, l := range lines {
		fmt.Fprintf(sb, "%c%s\n", l.Op, l.Text)
	}
}
