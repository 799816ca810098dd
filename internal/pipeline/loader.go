package pipeline

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"

	"github.com/ppiankov/stimalign/internal/model"
)

// Required and optional columns of the behavioral log
const (
	colSample = "sample"
	colType   = "type"
	colValue  = "value"
	colOnset  = "onset"
)

var (
	// ErrMissingColumn is returned when the log header lacks a required column
	ErrMissingColumn = errors.New("missing required column")
	// ErrTooLarge is returned for input files above the configured limit
	ErrTooLarge = errors.New("input file too large")
)

// Loader reads the three session inputs from disk
type Loader struct {
	maxSize datasize.ByteSize // 0 disables the limit
}

// NewLoader creates a new Loader refusing files larger than maxSize
func NewLoader(maxSize datasize.ByteSize) *Loader {
	return &Loader{maxSize: maxSize}
}

// open opens path after checking it against the size limit
func (l *Loader) open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if l.maxSize > 0 {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if size := datasize.ByteSize(info.Size()); size > l.maxSize {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s is %s, limit %s",
				ErrTooLarge, path, size.HumanReadable(), l.maxSize.HumanReadable())
		}
	}
	return f, nil
}

// ReadCorpus returns the raw corpus bytes
func (l *Loader) ReadCorpus(path string) ([]byte, error) {
	f, err := l.open(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return data, nil
}

// LoadLog reads a tab-separated behavioral log. Columns are located by
// header name; onset is optional.
func (l *Loader) LoadLog(path string) ([]model.RawLogRow, error) {
	f, err := l.open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseLog(f)
}

// ParseLog reads behavioral log rows from r
func ParseLog(r io.Reader) ([]model.RawLogRow, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return []model.RawLogRow{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{colSample, colType, colValue} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}
	onsetCol, hasOnset := cols[colOnset]

	rows := []model.RawLogRow{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		line, _ := reader.FieldPos(0)

		sample, err := parseSample(field(record, cols[colSample]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := model.RawLogRow{
			Sample: sample,
			Type:   strings.TrimSpace(field(record, cols[colType])),
			Value:  strings.TrimSpace(field(record, cols[colValue])),
			Line:   line,
		}
		if hasOnset {
			row.Onset = parseOnset(field(record, onsetCol))
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// LoadTriggers reads device events: three integer columns (sample,
// duration, code) separated by tabs, commas or spaces. A non-numeric first
// line is treated as a header.
func (l *Loader) LoadTriggers(path string) ([]model.DeviceEvent, error) {
	f, err := l.open(path)
	if err != nil {
		return nil, fmt.Errorf("open triggers: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseTriggers(f)
}

// ParseTriggers reads device events from r
func ParseTriggers(r io.Reader) ([]model.DeviceEvent, error) {
	events := []model.DeviceEvent{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	first := true
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == '\t' || r == ',' || r == ' '
		})
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 columns, got %d", lineNo, len(fields))
		}

		var vals [3]int
		var parseErr error
		for i, s := range fields {
			if vals[i], parseErr = strconv.Atoi(s); parseErr != nil {
				break
			}
		}
		header := first
		first = false
		if parseErr != nil {
			if header {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", lineNo, parseErr)
		}

		events = append(events, model.DeviceEvent{Sample: vals[0], Duration: vals[1], Code: vals[2]})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read triggers: %w", err)
	}
	return events, nil
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return record[i]
}

// parseSample accepts integer samples and integral floats ("1234.0")
func parseSample(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid sample %q", s)
	}
	return int(f), nil
}

// parseOnset returns 0 for missing values such as "n/a"
func parseOnset(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
