package waveform

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Volume-1 channel block layout: a text header, an integer header and a
// float header, each of fixed row count, followed by the samples.
const (
	v1aTextRows  = 16
	v1aIntRows   = 10
	v1aFloatRows = 10
	v1aPerLine   = 10

	v1aIntYear    = 16
	v1aIntMonth   = 17
	v1aIntDay     = 18
	v1aIntHour    = 19
	v1aIntMinute  = 20
	v1aIntSecond  = 21
	v1aIntMillis  = 22
	v1aIntSamples = 33

	v1aFloatDelta = 5

	v1aNetwork = "NZ"
	v1aUnits   = "mm/s^2"
)

// V1AReader parses GeoNet volume-1 uncorrected accelerogram files. Each file
// holds one block per channel.
type V1AReader struct{}

// Read parses every channel block in the file at path.
func (V1AReader) Read(path string) ([]Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "v1a: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "v1a: read %s", path)
	}

	var traces []Trace
	offset := 0
	for {
		offset = skipBlank(lines, offset)
		if offset >= len(lines) {
			break
		}
		tr, next, err := readV1AChannel(lines, offset)
		if err != nil {
			return nil, eris.Wrapf(err, "v1a: %s: channel at line %d", filepath.Base(path), offset+1)
		}
		tr.Source = path
		traces = append(traces, tr)
		offset = next
	}
	return traces, nil
}

func skipBlank(lines []string, offset int) int {
	for offset < len(lines) && strings.TrimSpace(lines[offset]) == "" {
		offset++
	}
	return offset
}

func readV1AChannel(lines []string, offset int) (Trace, int, error) {
	headerRows := v1aTextRows + v1aIntRows + v1aFloatRows
	if len(lines)-offset < headerRows {
		return Trace{}, 0, eris.Errorf("truncated header: need %d lines, have %d", headerRows, len(lines)-offset)
	}

	text := lines[offset : offset+v1aTextRows]
	offset += v1aTextRows

	ints, err := parseInts(lines[offset : offset+v1aIntRows])
	if err != nil {
		return Trace{}, 0, err
	}
	offset += v1aIntRows
	if len(ints) <= v1aIntSamples {
		return Trace{}, 0, eris.Errorf("integer header has %d values", len(ints))
	}

	floats, err := parseFloats(lines[offset : offset+v1aFloatRows])
	if err != nil {
		return Trace{}, 0, err
	}
	offset += v1aFloatRows
	if len(floats) <= v1aFloatDelta {
		return Trace{}, 0, eris.Errorf("float header has %d values", len(floats))
	}

	npts := ints[v1aIntSamples]
	if npts < 0 {
		return Trace{}, 0, eris.Errorf("negative sample count %d", npts)
	}
	delta := floats[v1aFloatDelta]
	if delta <= 0 {
		return Trace{}, 0, eris.Errorf("invalid sample interval %g", delta)
	}

	rows := (npts + v1aPerLine - 1) / v1aPerLine
	if len(lines)-offset < rows {
		return Trace{}, 0, eris.Errorf("truncated data: need %d lines, have %d", rows, len(lines)-offset)
	}
	data, err := parseFloats(lines[offset : offset+rows])
	if err != nil {
		return Trace{}, 0, err
	}
	if len(data) < npts {
		return Trace{}, 0, eris.Errorf("expected %d samples, found %d", npts, len(data))
	}
	offset += rows

	start := time.Date(ints[v1aIntYear], time.Month(ints[v1aIntMonth]), ints[v1aIntDay],
		ints[v1aIntHour], ints[v1aIntMinute], ints[v1aIntSecond],
		ints[v1aIntMillis]*int(time.Millisecond), time.UTC)

	return Trace{
		Network:      v1aNetwork,
		Station:      stationCode(text),
		Channel:      componentName(text),
		StartTime:    start,
		SamplingRate: 1 / delta,
		Data:         data[:npts],
		Units:        v1aUnits,
	}, offset, nil
}

// stationCode is the first token of the second text header row.
func stationCode(text []string) string {
	fields := strings.Fields(text[1])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// componentName is the token following "Component" in the text header.
func componentName(text []string) string {
	for _, line := range text {
		fields := strings.Fields(line)
		for i, f := range fields {
			if strings.EqualFold(f, "component") && i+1 < len(fields) {
				return fields[i+1]
			}
		}
	}
	return "UNK"
}

func parseInts(lines []string) ([]int, error) {
	var out []int
	for _, line := range lines {
		for _, f := range strings.Fields(line) {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, eris.Wrapf(err, "parse integer header value %q", f)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func parseFloats(lines []string) ([]float64, error) {
	var out []float64
	for _, line := range lines {
		for _, f := range strings.Fields(line) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "parse value %q", f)
			}
			out = append(out, v)
		}
	}
	return out, nil
}
