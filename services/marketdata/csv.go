package marketdata

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LoadBarsCSV reads one instrument's daily bars from a CSV file. The header
// must contain open/high/low/close plus a date column (date, time_utc or
// timestamp); volume is optional. Exported files are sometimes UTF-16 with a
// BOM, so the reader sniffs and decodes before parsing. Malformed rows are
// skipped with a warning; the result is sorted and deduplicated by date.
func LoadBarsCSV(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(decodedReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) <= 1 {
		return nil, errors.New("input CSV missing rows")
	}

	header := records[0]
	colIdx := map[string]int{}
	for idx, col := range header {
		colIdx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "﻿")))] = idx
	}

	for _, col := range []string{"open", "high", "low", "close"} {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	dateIdx := -1
	dateCol := ""
	for _, cand := range []string{"date", "time_utc", "timestamp"} {
		if idx, ok := colIdx[cand]; ok {
			dateIdx = idx
			dateCol = cand
			break
		}
	}
	if dateIdx == -1 {
		return nil, errors.New("missing date, time_utc or timestamp column")
	}
	volIdx := -1
	if idx, ok := colIdx["volume"]; ok {
		volIdx = idx
	}

	bars := make([]Bar, 0, len(records)-1)
	skipped := 0
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if len(rec) <= dateIdx {
			skipped++
			continue
		}
		date, err := parseBarDate(dateCol, rec[dateIdx])
		if err != nil {
			skipped++
			continue
		}
		open, err1 := parsePrice(rec, colIdx["open"])
		high, err2 := parsePrice(rec, colIdx["high"])
		low, err3 := parsePrice(rec, colIdx["low"])
		closep, err4 := parsePrice(rec, colIdx["close"])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			skipped++
			continue
		}
		vol := 0.0
		if volIdx >= 0 && volIdx < len(rec) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(rec[volIdx]), 64); err == nil {
				vol = v
			}
		}
		b := Bar{Date: date, Open: open, High: high, Low: low, Close: closep, Volume: vol}
		if !b.Valid() {
			skipped++
			continue
		}
		bars = append(bars, b)
	}
	if skipped > 0 {
		log.Printf("marketdata: %s skipped %d malformed rows", filepath.Base(path), skipped)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no parsable rows", path)
	}
	return SortDedup(bars), nil
}

func parseBarDate(col, raw string) (time.Time, error) {
	s := strings.TrimSpace(strings.TrimPrefix(raw, "﻿"))
	switch col {
	case "timestamp":
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	case "time_utc":
		return time.Parse(time.RFC3339, s)
	default:
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t.UTC(), nil
		}
		return time.Parse(time.RFC3339, s)
	}
}

func parsePrice(rec []string, idx int) (float64, error) {
	if idx >= len(rec) {
		return 0, errors.New("short row")
	}
	return strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
}

// decodedReader wraps f with a UTF-16 decoder when a BOM is present.
func decodedReader(f *os.File) io.Reader {
	br := bufio.NewReader(f)
	b, _ := br.Peek(2)
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE {
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		return transform.NewReader(br, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder())
	}
	return br
}

// DirSource serves bars from a directory of <TICKER>.csv files.
type DirSource struct {
	Dir string
}

func NewDirSource(dir string) *DirSource { return &DirSource{Dir: dir} }

func (s *DirSource) DailyBars(_ context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	path := filepath.Join(s.Dir, ticker+".csv")
	if _, err := os.Stat(path); err != nil {
		lower := filepath.Join(s.Dir, strings.ToLower(ticker)+".csv")
		if _, err2 := os.Stat(lower); err2 == nil {
			path = lower
		} else {
			return nil, fmt.Errorf("no CSV for %s: %w", ticker, err)
		}
	}
	bars, err := LoadBarsCSV(path)
	if err != nil {
		return nil, err
	}
	return Clip(bars, from, to), nil
}

// Tickers lists instruments available in the directory.
func (s *DirSource) Tickers() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".csv") {
			continue
		}
		out = append(out, strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name))))
	}
	return out, nil
}
