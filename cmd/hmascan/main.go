// cmd/hmascan — Offline Hull-MA trend-flip scanner.
// Reads a CSV of bars (the tradesrv snapshot/archive column layout) and
// emits one row per trend flip: the bar where the 2-bar HMA direction
// changed sign.
//
// Usage:
//
//	hmascan -in data/EURUSD/current.csv [-period 21] [-out flips.csv]
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"tradesrv/internal/indicator"
	"tradesrv/internal/model"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	in := flag.String("in", "", "input CSV of bars (snapshot column layout)")
	out := flag.String("out", "", "output CSV path (default stdout)")
	period := flag.Int("period", 21, "Hull MA period")
	flag.Parse()

	if *in == "" {
		log.Fatal("[hmascan] -in is required")
	}

	bars, err := readBars(*in)
	if err != nil {
		log.Fatalf("[hmascan] %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("[hmascan] no bars in %s", *in)
	}
	log.Printf("[hmascan] scanning %d bars from %s (period %d)", len(bars), *in, *period)

	flips := indicator.HullFlips(indicator.CloseSeries(bars), *period)

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("[hmascan] create output: %v", err)
		}
		defer f.Close()
		w = f
	}
	if err := writeFlips(w, bars, flips); err != nil {
		log.Fatalf("[hmascan] write output: %v", err)
	}
	log.Printf("[hmascan] found %d trend flips", len(flips))
}

func readBars(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var bars []model.Bar
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == model.CSVHeader[0] {
			continue
		}
		bar, err := model.BarFromCSV(rec)
		if err != nil {
			log.Printf("[hmascan] skipping row %d: %v", i, err)
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func writeFlips(w io.Writer, bars []model.Bar, flips []indicator.Flip) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"symbol", "time", "close", "hma", "signal"}); err != nil {
		return err
	}
	for _, fl := range flips {
		bar := bars[fl.Index]
		signal := string(model.ActionSell)
		if fl.Up {
			signal = string(model.ActionBuy)
		}
		rec := []string{
			bar.Symbol,
			bar.Time.UTC().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.5f", bar.Close),
			fmt.Sprintf("%.5f", fl.Value),
			signal,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
