package gcode

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var errNotFinite = errors.New("not a finite number")

var (
	commandHead = regexp.MustCompile(`^[GMT]\d+`)
	paramWord   = regexp.MustCompile(`^[A-Z]-?(\d+(\.\d*)?|\.\d+)$`)
)

// line is one gcode line split into its command words and trailing comment.
type line struct {
	command string
	params  []string
	comment string
	hasNote bool
}

func splitLine(raw string) line {
	var l line
	code := raw
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		code = raw[:i]
		l.comment = trimSpace(raw[i+1:])
		l.hasNote = true
	}
	fields := splitFields(trimSpace(code))
	if len(fields) == 0 {
		return l
	}
	head := strings.ToUpper(fields[0])
	if commandHead.MatchString(head) {
		l.command = normalizeCommand(head)
		l.params = fields[1:]
	}
	return l
}

// normalizeCommand turns G01 into G1 so lookups can use canonical names.
func normalizeCommand(head string) string {
	n, err := strconv.Atoi(head[1:])
	if err != nil {
		return head
	}
	return head[:1] + strconv.Itoa(n)
}

// param returns the numeric value of the first word starting with letter.
// ok is false when the word is absent; err is set when it is present but
// unparseable.
func (l line) param(letter byte) (v float64, ok bool, err error) {
	for _, p := range l.params {
		if len(p) == 0 || upper(p[0]) != letter {
			continue
		}
		word := strings.ToUpper(p)
		if !paramWord.MatchString(word) {
			return 0, true, &strconv.NumError{Func: "ParseFloat", Num: p[1:], Err: strconv.ErrSyntax}
		}
		v, err := parseNumber(word[1:])
		return v, true, err
	}
	return 0, false, nil
}

// parseNumber is strconv.ParseFloat limited to finite values.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

func (l line) hasParam(letter byte) bool {
	for _, p := range l.params {
		if len(p) > 0 && upper(p[0]) == letter {
			return true
		}
	}
	return false
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func splitFields(line string) []string {
	var fields []string
	start := -1
	for i, r := range line {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				fields = append(fields, line[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, line[start:])
	}
	return fields
}

func trimSpace(s string) string {
	start := 0
	for start < len(s) {
		if s[start] != ' ' && s[start] != '\t' && s[start] != '\n' && s[start] != '\r' {
			break
		}
		start++
	}
	end := len(s)
	for end > start {
		c := s[end-1]
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			break
		}
		end--
	}
	return s[start:end]
}
