package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pipguard/pipguard/market"
)

// FileProvider reads signals from a YAML or JSON file maintained by an
// external analysis process. The file is re-read on every Generate call, so
// new signals show up at the next daily scan without a restart.
//
// File format, one entry per signal:
//
//	- instrument: EUR_USD
//	  side: long
//	  entry: 1.0850
//	  stop: 1.0820
//	  confluence: 5
//	  date: 2026-03-02
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

type fileSignal struct {
	Instrument string  `json:"instrument" yaml:"instrument"`
	Side       string  `json:"side" yaml:"side"`
	Entry      float64 `json:"entry" yaml:"entry"`
	Stop       float64 `json:"stop" yaml:"stop"`
	Confluence int     `json:"confluence" yaml:"confluence"`
	Quality    int     `json:"quality" yaml:"quality"`
	Date       string  `json:"date" yaml:"date"` // YYYY-MM-DD, empty means any day
}

func (p *FileProvider) Generate(_ context.Context, instrument string, asOf time.Time) (*Signal, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("signal file: %w", err)
	}

	var entries []fileSignal
	if strings.HasSuffix(p.path, ".json") {
		err = json.Unmarshal(data, &entries)
	} else {
		err = yaml.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("signal file %s: %w", p.path, err)
	}

	day := asOf.UTC().Format("2006-01-02")
	for _, e := range entries {
		if e.Instrument != instrument {
			continue
		}
		if e.Date != "" && e.Date != day {
			continue
		}
		side, err := parseSide(e.Side)
		if err != nil {
			return nil, fmt.Errorf("signal file %s: %s: %w", p.path, instrument, err)
		}
		s := &Signal{
			Instrument: e.Instrument,
			Side:       side,
			Entry:      e.Entry,
			Stop:       e.Stop,
			Confluence: e.Confluence,
			Quality:    e.Quality,
			CreatedAt:  asOf,
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}

func parseSide(s string) (market.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return market.Long, nil
	case "short", "sell":
		return market.Short, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}
