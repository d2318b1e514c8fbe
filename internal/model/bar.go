package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Bar represents one OHLCV observation for a single symbol.
// Prices are float64 (broker feeds quote 5-digit forex prices); Time is UTC.
// A Bar is immutable once accepted into a buffer.
type Bar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Validate checks required fields and OHLC sanity. The upstream feed does
// not enforce high >= max(open, close), so we do it at the ingestion boundary.
func (b *Bar) Validate() error {
	if b.Time.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrValidation)
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("%w: non-positive price", ErrValidation)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume", ErrValidation)
	}
	if b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("%w: high %.5f below open/close", ErrValidation, b.High)
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("%w: low %.5f above open/close", ErrValidation, b.Low)
	}
	return nil
}

// Equal reports whether two bars are bit-identical across timestamp and all
// OHLCV fields. This is the duplicate test used by the admission filter.
func (b *Bar) Equal(o Bar) bool {
	return b.Time.Equal(o.Time) &&
		b.Open == o.Open && b.High == o.High &&
		b.Low == o.Low && b.Close == o.Close &&
		b.Volume == o.Volume
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// csvTimeLayout is the timestamp format used in snapshot and archive files.
const csvTimeLayout = "2006-01-02 15:04:05"

// CSVHeader is the column layout of snapshot and archive files.
var CSVHeader = []string{"symbol", "time", "open", "high", "low", "close", "volume"}

// CSVRecord renders the bar as a CSV row matching CSVHeader.
func (b *Bar) CSVRecord() []string {
	return []string{
		b.Symbol,
		b.Time.UTC().Format(csvTimeLayout),
		strconv.FormatFloat(b.Open, 'f', -1, 64),
		strconv.FormatFloat(b.High, 'f', -1, 64),
		strconv.FormatFloat(b.Low, 'f', -1, 64),
		strconv.FormatFloat(b.Close, 'f', -1, 64),
		strconv.FormatInt(b.Volume, 10),
	}
}

// BarFromCSV parses a CSV row written by CSVRecord.
func BarFromCSV(rec []string) (Bar, error) {
	if len(rec) != len(CSVHeader) {
		return Bar{}, fmt.Errorf("%w: want %d columns, got %d", ErrValidation, len(CSVHeader), len(rec))
	}
	ts, err := time.Parse(csvTimeLayout, rec[1])
	if err != nil {
		return Bar{}, fmt.Errorf("%w: bad time %q", ErrValidation, rec[1])
	}
	var b Bar
	b.Symbol = rec[0]
	b.Time = ts.UTC()
	if b.Open, err = strconv.ParseFloat(rec[2], 64); err != nil {
		return Bar{}, fmt.Errorf("%w: bad open %q", ErrValidation, rec[2])
	}
	if b.High, err = strconv.ParseFloat(rec[3], 64); err != nil {
		return Bar{}, fmt.Errorf("%w: bad high %q", ErrValidation, rec[3])
	}
	if b.Low, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return Bar{}, fmt.Errorf("%w: bad low %q", ErrValidation, rec[4])
	}
	if b.Close, err = strconv.ParseFloat(rec[5], 64); err != nil {
		return Bar{}, fmt.Errorf("%w: bad close %q", ErrValidation, rec[5])
	}
	if b.Volume, err = strconv.ParseInt(rec[6], 10, 64); err != nil {
		return Bar{}, fmt.Errorf("%w: bad volume %q", ErrValidation, rec[6])
	}
	return b, nil
}
