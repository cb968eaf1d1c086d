package sourcemap

import (
	"fmt"
	"sort"
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		idx[base64Chars[i]] = int8(i)
	}
	return idx
}()

// segment is one decoded mapping. All fields are 0-based.
type segment struct {
	genLine    int
	genColumn  int
	source     int
	origLine   int
	origColumn int
}

// decodeMappings decodes the "mappings" field of a flat source map.
// Segments without source information are dropped, and names are ignored.
func decodeMappings(s string) ([]segment, error) {
	var (
		out                       []segment
		genLine, genCol           int
		source, origLine, origCol int
		fields                    [5]int
	)

	i := 0
	for i < len(s) {
		switch s[i] {
		case ';':
			genLine++
			genCol = 0
			i++
			continue
		case ',':
			i++
			continue
		}

		n := 0
		for i < len(s) && s[i] != ',' && s[i] != ';' {
			if n == len(fields) {
				return nil, fmt.Errorf("segment at offset %d has more than %d fields", i, len(fields))
			}
			v, next, err := decodeVLQ(s, i)
			if err != nil {
				return nil, err
			}
			fields[n] = v
			n++
			i = next
		}

		switch n {
		case 1:
			genCol += fields[0]
		case 4, 5:
			genCol += fields[0]
			source += fields[1]
			origLine += fields[2]
			origCol += fields[3]
			out = append(out, segment{
				genLine:    genLine,
				genColumn:  genCol,
				source:     source,
				origLine:   origLine,
				origColumn: origCol,
			})
		default:
			return nil, fmt.Errorf("invalid segment with %d fields on generated line %d", n, genLine+1)
		}
	}
	return out, nil
}

// decodeVLQ reads one base64 VLQ value starting at s[i].
func decodeVLQ(s string, i int) (value int, next int, err error) {
	var shift uint
	var result int
	for {
		if i >= len(s) {
			return 0, i, fmt.Errorf("unterminated VLQ value")
		}
		digit := base64Index[s[i]]
		if digit < 0 {
			return 0, i, fmt.Errorf("invalid base64 character %q at offset %d", s[i], i)
		}
		i++
		result += int(digit&31) << shift
		if digit&32 == 0 {
			break
		}
		shift += 5
	}

	value = result >> 1
	if result&1 == 1 {
		value = -value
	}
	return value, i, nil
}

// reverseIndex answers original -> generated lookups for one map.
type reverseIndex struct {
	bySource map[int][]segment
}

func newReverseIndex(segs []segment) *reverseIndex {
	idx := &reverseIndex{bySource: make(map[int][]segment)}
	for _, s := range segs {
		idx.bySource[s.source] = append(idx.bySource[s.source], s)
	}
	for _, list := range idx.bySource {
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.origLine != b.origLine {
				return a.origLine < b.origLine
			}
			if a.origColumn != b.origColumn {
				return a.origColumn < b.origColumn
			}
			if a.genLine != b.genLine {
				return a.genLine < b.genLine
			}
			return a.genColumn < b.genColumn
		})
	}
	return idx
}

func origAfter(s segment, line, col int) bool {
	if s.origLine != line {
		return s.origLine > line
	}
	return s.origColumn > col
}

// lowerBound returns the mapping at or before (line, col) on the same
// original line. When several generated positions share that original
// position the earliest one is returned.
func (r *reverseIndex) lowerBound(source, line, col int) (segment, bool) {
	list := r.bySource[source]
	i := sort.Search(len(list), func(i int) bool { return origAfter(list[i], line, col) })
	if i == 0 {
		return segment{}, false
	}
	found := list[i-1]
	if found.origLine != line {
		return segment{}, false
	}
	for i-2 >= 0 && list[i-2].origLine == found.origLine && list[i-2].origColumn == found.origColumn {
		i--
		found = list[i-1]
	}
	return found, true
}

// upperBound returns the first mapping at or after (line, col).
func (r *reverseIndex) upperBound(source, line, col int) (segment, bool) {
	list := r.bySource[source]
	i := sort.Search(len(list), func(i int) bool {
		s := list[i]
		if s.origLine != line {
			return s.origLine > line
		}
		return s.origColumn >= col
	})
	if i == len(list) {
		return segment{}, false
	}
	return list[i], true
}
