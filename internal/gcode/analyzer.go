package gcode

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"octoprint-cli/internal/apperr"
)

const maxLineBytes = 1 << 20

type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r *Range) extend(v float64) *Range {
	if r == nil {
		return &Range{Min: v, Max: v}
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
	return r
}

// BoundingBox holds the extents reached by movement commands. An axis is
// nil when no move ever set it.
type BoundingBox struct {
	X *Range `json:"x"`
	Y *Range `json:"y"`
	Z *Range `json:"z"`
}

// Metadata is what a gcode file says about itself. Every derived value is
// nil when the file does not report it.
type Metadata struct {
	File              string       `json:"filename"`
	SizeBytes         int64        `json:"size_bytes"`
	Slicer            string       `json:"slicer,omitempty"`
	Layers            *int         `json:"layers"`
	EstimatedSeconds  *int         `json:"estimated_time_seconds"`
	FilamentLengthM   *float64     `json:"filament_length_m"`
	FilamentVolumeCM3 *float64     `json:"filament_volume_cm3"`
	FilamentWeightG   *float64     `json:"filament_weight_g"`
	BedTemp           *float64     `json:"bed_temp"`
	HotendTemp        *float64     `json:"hotend_temp"`
	LayerHeight       *float64     `json:"layer_height"`
	FirstLayerHeight  *float64     `json:"first_layer_height"`
	BoundingBox       *BoundingBox `json:"bounding_box"`
	Malformed         []string     `json:"malformed,omitempty"`
}

func (m Metadata) EstimatedTime() (time.Duration, bool) {
	if m.EstimatedSeconds == nil {
		return 0, false
	}
	return time.Duration(*m.EstimatedSeconds) * time.Second, true
}

// Analyze scans the file at path once and returns its metadata. Only a
// missing or unreadable file is an error; unparseable values are listed in
// Metadata.Malformed.
func Analyze(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, &apperr.FileError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Metadata{}, &apperr.FileError{Path: path, Err: err}
	}
	if info.IsDir() {
		return Metadata{}, &apperr.FileError{Path: path, Err: fmt.Errorf("is a directory")}
	}
	md, err := AnalyzeReader(f)
	if err != nil {
		return Metadata{}, &apperr.FileError{Path: path, Err: err}
	}
	md.File = filepath.Base(path)
	md.SizeBytes = info.Size()
	return md, nil
}

// AnalyzeReader is Analyze over an arbitrary stream. File and SizeBytes are
// left for the caller; SizeBytes counts the bytes read.
func AnalyzeReader(r io.Reader) (Metadata, error) {
	cr := &countingReader{r: r}
	sc := bufio.NewScanner(cr)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	s := newScan()
	for sc.Scan() {
		s.feed(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return Metadata{}, err
	}
	md := s.finish()
	md.SizeBytes = cr.n
	return md, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type scan struct {
	md Metadata

	layerMarkers   int
	bedFallback    *float64
	hotendFallback *float64
	firstLayerPct  *float64

	relative  bool
	pos       [3]float64
	box       [3]*Range
	moves     int
	badMoves  int
	malformed map[string]bool
}

func newScan() *scan {
	return &scan{malformed: map[string]bool{}}
}

func (s *scan) feed(raw string) {
	l := splitLine(raw)
	if l.command != "" {
		s.command(l)
	}
	if l.hasNote && l.comment != "" {
		s.comment(l.comment)
	}
}

func (s *scan) command(l line) {
	switch l.command {
	case "G0", "G1", "G2", "G3":
		s.move(l)
	case "G90":
		s.relative = false
	case "G91":
		s.relative = true
	case "G92":
		s.setPosition(l, false)
	case "G28":
		s.setPosition(l, true)
	case "M140", "M190":
		s.temperature(l, "bed_temp", &s.md.BedTemp)
	case "M104", "M109":
		s.temperature(l, "hotend_temp", &s.md.HotendTemp)
	}
}

var axes = [3]byte{'X', 'Y', 'Z'}

func (s *scan) move(l line) {
	moved := false
	for i, axis := range axes {
		v, ok, err := l.param(axis)
		if !ok {
			continue
		}
		if err != nil {
			s.badMoves++
			continue
		}
		if s.relative {
			v += s.pos[i]
		}
		s.pos[i] = v
		s.box[i] = s.box[i].extend(v)
		moved = true
	}
	if moved {
		s.moves++
	}
}

// setPosition handles G92 and G28: the listed axes (all when none are
// listed) take a new value without counting as travel.
func (s *scan) setPosition(l line, home bool) {
	listed := false
	for i, axis := range axes {
		if !l.hasParam(axis) {
			continue
		}
		listed = true
		v, _, err := l.param(axis)
		if home || err != nil {
			v = 0
		}
		s.pos[i] = v
	}
	if !listed && (home || !l.hasParam('E')) {
		s.pos = [3]float64{}
	}
}

func (s *scan) temperature(l line, field string, dst **float64) {
	if *dst != nil {
		return
	}
	v, ok, err := l.param('S')
	if !ok {
		return
	}
	if err != nil {
		s.bad(field, strings.Join(l.params, " "), err)
		return
	}
	// S0 switches the heater off and says nothing about the print.
	if v > 0 {
		*dst = &v
	}
}

func (s *scan) comment(c string) {
	lower := strings.ToLower(c)
	switch {
	case strings.HasPrefix(c, "LAYER_COUNT:"):
		s.setInt("layers", &s.md.Layers, strings.TrimPrefix(c, "LAYER_COUNT:"))
		return
	case strings.HasPrefix(c, "LAYER:"), strings.HasPrefix(c, "LAYER_CHANGE"), strings.HasPrefix(c, "CHANGE_LAYER"):
		s.layerMarkers++
		return
	case strings.HasPrefix(c, "TIME:"):
		s.setDuration(strings.TrimPrefix(c, "TIME:"))
		return
	case strings.HasPrefix(lower, "filament used:"):
		s.setFilamentMeters(c[len("filament used:"):])
		return
	case strings.HasPrefix(lower, "layer height:"):
		s.setFloat("layer_height", &s.md.LayerHeight, c[len("layer height:"):])
		return
	case strings.HasPrefix(lower, "generated with "), strings.HasPrefix(lower, "generated by "):
		s.setSlicer(c)
		return
	case strings.HasPrefix(lower, "total layer number:"):
		s.setInt("layers", &s.md.Layers, c[len("total layer number:"):])
		return
	case strings.HasPrefix(lower, "print time:"):
		s.setDuration(c[len("print time:"):])
		return
	}
	if i := strings.Index(lower, "total estimated time:"); i >= 0 {
		rest := c[i+len("total estimated time:"):]
		if j := strings.IndexByte(rest, ';'); j >= 0 {
			rest = rest[:j]
		}
		s.setDuration(rest)
		return
	}

	key, value, ok := strings.Cut(c, "=")
	if !ok {
		return
	}
	key = strings.ToLower(trimSpace(key))
	value = trimSpace(value)
	switch {
	case strings.HasPrefix(key, "estimated printing time"):
		s.setDuration(value)
	case key == "total layers count":
		s.setInt("layers", &s.md.Layers, value)
	case key == "filament used [mm]":
		if s.md.FilamentLengthM == nil {
			if mm, ok := s.sum("filament_length", value); ok {
				m := mm / 1000
				s.md.FilamentLengthM = &m
			}
		}
	case key == "filament used [cm3]":
		if s.md.FilamentVolumeCM3 == nil {
			if v, ok := s.sum("filament_volume", value); ok {
				s.md.FilamentVolumeCM3 = &v
			}
		}
	case key == "filament used [g]", key == "total filament used [g]":
		if s.md.FilamentWeightG == nil {
			if v, ok := s.sum("filament_weight", value); ok {
				s.md.FilamentWeightG = &v
			}
		}
	case key == "layer_height":
		s.setFloat("layer_height", &s.md.LayerHeight, value)
	case key == "first_layer_height", key == "initial_layer_print_height":
		if pct, ok := strings.CutSuffix(value, "%"); ok {
			s.setFloat("first_layer_height", &s.firstLayerPct, pct)
		} else {
			s.setFloat("first_layer_height", &s.md.FirstLayerHeight, value)
		}
	case key == "bed_temperature", key == "hot_plate_temp":
		s.setFloat("bed_temp", &s.bedFallback, firstValue(value))
	case key == "temperature", key == "nozzle_temperature":
		s.setFloat("hotend_temp", &s.hotendFallback, firstValue(value))
	}
}

func (s *scan) setSlicer(c string) {
	if s.md.Slicer != "" {
		return
	}
	lower := strings.ToLower(c)
	name := c
	for _, prefix := range []string{"generated with ", "generated by "} {
		if strings.HasPrefix(lower, prefix) {
			name = c[len(prefix):]
			break
		}
	}
	if i := strings.Index(name, " on "); i >= 0 {
		name = name[:i]
	}
	s.md.Slicer = trimSpace(name)
}

func (s *scan) setInt(field string, dst **int, value string) {
	if *dst != nil {
		return
	}
	value = trimSpace(value)
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		if err == nil {
			err = strconv.ErrRange
		}
		s.bad(field, value, err)
		return
	}
	*dst = &n
}

func (s *scan) setFloat(field string, dst **float64, value string) {
	if *dst != nil {
		return
	}
	value = trimSpace(value)
	v, err := parseNumber(value)
	if err != nil {
		s.bad(field, value, err)
		return
	}
	*dst = &v
}

func (s *scan) setDuration(value string) {
	if s.md.EstimatedSeconds != nil {
		return
	}
	value = trimSpace(value)
	secs, err := parseDuration(value)
	if err != nil {
		s.bad("estimated_time", value, err)
		return
	}
	s.md.EstimatedSeconds = &secs
}

// setFilamentMeters reads Cura's "1.234m" or "1.2m, 0m" form.
func (s *scan) setFilamentMeters(value string) {
	if s.md.FilamentLengthM != nil {
		return
	}
	var parts []string
	for _, p := range strings.Split(value, ",") {
		parts = append(parts, strings.TrimSuffix(trimSpace(p), "m"))
	}
	if v, ok := s.sum("filament_length", strings.Join(parts, ",")); ok {
		s.md.FilamentLengthM = &v
	}
}

// sum adds comma separated per-extruder values.
func (s *scan) sum(field, value string) (float64, bool) {
	total := 0.0
	for _, p := range strings.Split(value, ",") {
		p = trimSpace(p)
		v, err := parseNumber(p)
		if err != nil {
			s.bad(field, value, err)
			return 0, false
		}
		total += v
	}
	if math.IsInf(total, 0) {
		s.bad(field, value, errNotFinite)
		return 0, false
	}
	return total, true
}

func firstValue(v string) string {
	if i := strings.IndexAny(v, ",;"); i >= 0 {
		return v[:i]
	}
	return v
}

func (s *scan) bad(field, value string, err error) {
	if s.malformed[field] {
		return
	}
	s.malformed[field] = true
	s.md.Malformed = append(s.md.Malformed, (&apperr.PartialDataError{Field: field, Value: value, Err: err}).Error())
}

func (s *scan) finish() Metadata {
	md := s.md
	if md.Layers == nil && s.layerMarkers > 0 {
		n := s.layerMarkers
		md.Layers = &n
	}
	if md.BedTemp == nil {
		md.BedTemp = s.bedFallback
	}
	if md.HotendTemp == nil {
		md.HotendTemp = s.hotendFallback
	}
	if md.FirstLayerHeight == nil && s.firstLayerPct != nil && md.LayerHeight != nil {
		h := *md.LayerHeight * *s.firstLayerPct / 100
		md.FirstLayerHeight = &h
	}
	if s.moves > 0 {
		md.BoundingBox = &BoundingBox{X: s.box[0], Y: s.box[1], Z: s.box[2]}
	}
	if s.badMoves > 0 {
		md.Malformed = append(md.Malformed, fmt.Sprintf("bounding_box: %d movement arguments could not be parsed", s.badMoves))
	}
	return md
}
