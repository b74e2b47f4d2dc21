// Package replay runs the full trade lifecycle against historical bars. The
// engine is single-threaded and its output is bit-identical across runs on
// the same input.
package replay

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/xyproto/unzip"

	"github.com/pipguard/pipguard/market"
)

// LoadFile reads one instrument's bars from a CSV file. The instrument is
// the file name up to the first dot: EURUSD.csv, EURUSD.csv.xz. Columns:
// time,open,high,low,close,volume with an optional header row; times are
// RFC3339 or "2006-01-02 15:04:05" in UTC.
func LoadFile(path string) (string, []market.Candle, error) {
	base := filepath.Base(path)
	instrument := base
	if i := strings.IndexByte(base, '.'); i > 0 {
		instrument = base[:i]
	}

	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return "", nil, fmt.Errorf("open xz %s: %w", path, err)
		}
		r = xr
	}

	bars, err := parseBars(r)
	if err != nil {
		return "", nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return instrument, bars, nil
}

// LoadDir loads every bar file in a directory: plain .csv, .csv.xz, and
// .zip archives of CSVs. Returns bars keyed by instrument.
func LoadDir(dir string) (map[string][]market.Candle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]market.Candle)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch {
		case strings.HasSuffix(e.Name(), ".zip"):
			if err := loadZip(path, out); err != nil {
				return nil, err
			}
		case strings.HasSuffix(e.Name(), ".csv"), strings.HasSuffix(e.Name(), ".csv.xz"):
			instrument, bars, err := LoadFile(path)
			if err != nil {
				return nil, err
			}
			out[instrument] = append(out[instrument], bars...)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no bar files in %s", dir)
	}
	return out, nil
}

func loadZip(path string, out map[string][]market.Candle) error {
	tmp, err := os.MkdirTemp("", "pipguard-bars-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := unzip.Extract(path, tmp); err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	return filepath.WalkDir(tmp, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".csv") {
			return err
		}
		instrument, bars, err := LoadFile(p)
		if err != nil {
			return err
		}
		out[instrument] = append(out[instrument], bars...)
		return nil
	})
}

func parseBars(r io.Reader) ([]market.Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	var bars []market.Candle
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) < 5 {
			return nil, fmt.Errorf("line %d: want at least 5 columns, got %d", line, len(row))
		}
		ts, err := parseTime(strings.TrimSpace(row[0]))
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c := market.Candle{Time: ts}
		for i, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close} {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d col %d: %w", line, i+2, err)
			}
			*dst = v
		}
		if len(row) > 5 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64); err == nil {
				c.Volume = v
			}
		}
		bars = append(bars, c)
	}
	return bars, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
