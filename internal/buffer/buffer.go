// Package buffer maintains the bounded, deduplicated, chronologically
// ordered live window of bars for one symbol, with CSV archival of evicted
// history and periodic snapshot backup for crash recovery.
package buffer

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"tradesrv/internal/markethours"
	"tradesrv/internal/model"
)

// Config holds the sizing and persistence policy for a SymbolBuffer.
type Config struct {
	DataDir string

	LiveCapacity  int // max bars kept while the market is open
	ClosedDivisor int // closed-market capacity = LiveCapacity / ClosedDivisor
	Slack         int // eviction runs only once capacity is exceeded by this margin

	DupStreakOpen   int // consecutive duplicates accepted while market open
	DupStreakClosed int // consecutive duplicates accepted while market closed

	DownsampleRatio int // keep 1 of N when downsampling an archive batch
	DownsampleMin   int // downsample only batches larger than this

	BackupInterval time.Duration
}

// DefaultConfig returns the reference buffer policy rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:         dataDir,
		LiveCapacity:    1000,
		ClosedDivisor:   10,
		Slack:           50,
		DupStreakOpen:   3,
		DupStreakClosed: 10,
		DownsampleRatio: 10,
		DownsampleMin:   100,
		BackupInterval:  300 * time.Second,
	}
}

// Stats is the read-only diagnostic view of one buffer. Archive counts are
// recomputed by scanning the archive directory on each call.
type Stats struct {
	CurrentSize          int       `json:"current_size"`
	ArchiveFileCount     int       `json:"archive_file_count"`
	TotalArchivedRecords int       `json:"total_archived_records"`
	LastBackupAt         time.Time `json:"last_backup_at"`
	MarketStatus         string    `json:"market_status"`
	DuplicateStreak      int       `json:"duplicate_streak"`
}

// AdmitResult reports what Admit did with a bar.
type AdmitResult struct {
	Accepted   bool
	Duplicate  bool // accepted but suppressed (duplicate within streak budget)
	Evicted    int  // bars archived out of the live window by this admit
	BackedUp   bool // a snapshot backup ran during this admit
	MarketOpen bool
}

// SymbolBuffer is the live bar window for one symbol. All methods are safe
// for concurrent use.
type SymbolBuffer struct {
	mu sync.Mutex

	symbol string
	cfg    Config
	cal    markethours.Calendar

	bars       []model.Bar
	dupStreak  int
	lastBackup time.Time

	now func() time.Time
}

// New creates a SymbolBuffer for symbol under cfg.DataDir.
func New(symbol string, cfg Config, cal markethours.Calendar) *SymbolBuffer {
	return &SymbolBuffer{
		symbol: symbol,
		cfg:    cfg,
		cal:    cal,
		now:    time.Now,
	}
}

// Admit validates bar and applies the admission policy: duplicates of the
// immediately preceding bar are accepted but suppressed up to a streak
// budget (DupStreakClosed when the market is closed, DupStreakOpen when
// open), then rejected outright until a non-duplicate arrives. Accepted bars
// may trigger eviction to archive and an interval snapshot backup.
func (b *SymbolBuffer) Admit(bar model.Bar) (AdmitResult, error) {
	if err := bar.Validate(); err != nil {
		return AdmitResult{}, err
	}
	bar.Time = bar.Time.UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	open := b.cal.IsOpen(now)
	res := AdmitResult{MarketOpen: open}

	if n := len(b.bars); n > 0 && b.bars[n-1].Equal(bar) {
		budget := b.cfg.DupStreakClosed
		if open {
			budget = b.cfg.DupStreakOpen
		}
		if b.dupStreak >= budget {
			return res, nil
		}
		b.dupStreak++
		res.Accepted = true
		res.Duplicate = true
		b.bars = append(b.bars, bar)
	} else {
		b.dupStreak = 0
		res.Accepted = true
		b.bars = append(b.bars, bar)
	}

	res.Evicted = b.evictLocked(now, open)

	if b.cfg.BackupInterval > 0 && now.Sub(b.lastBackup) >= b.cfg.BackupInterval {
		if err := b.snapshotLocked(); err != nil {
			log.Printf("[buffer] %s: snapshot backup failed: %v", b.symbol, err)
		} else {
			b.lastBackup = now
			res.BackedUp = true
		}
	}
	return res, nil
}

// capacity returns the live bound for the current market state.
func (b *SymbolBuffer) capacity(open bool) int {
	if open || b.cfg.ClosedDivisor <= 0 {
		return b.cfg.LiveCapacity
	}
	return b.cfg.LiveCapacity / b.cfg.ClosedDivisor
}

// evictLocked archives and drops the oldest excess bars once the live window
// exceeds capacity by the slack margin. Archive failures keep the bars live.
func (b *SymbolBuffer) evictLocked(now time.Time, open bool) int {
	capn := b.capacity(open)
	if len(b.bars) <= capn+b.cfg.Slack {
		return 0
	}
	excess := len(b.bars) - capn
	batch := b.bars[:excess]
	if err := b.writeArchive(batch, now); err != nil {
		log.Printf("[buffer] %s: archive write failed, keeping %d bars live: %v", b.symbol, excess, err)
		return 0
	}
	tail := make([]model.Bar, capn)
	copy(tail, b.bars[excess:])
	b.bars = tail
	log.Printf("[buffer] %s: evicted %d bars to archive, %d live", b.symbol, excess, len(b.bars))
	return excess
}

// writeArchive persists a batch of evicted bars as a dated CSV, downsampled
// when the batch covers a single calendar day and is large enough that full
// resolution is not worth keeping.
func (b *SymbolBuffer) writeArchive(batch []model.Bar, now time.Time) error {
	if len(batch) == 0 {
		return nil
	}
	first, last := batch[0].Time, batch[len(batch)-1].Time
	if sameDay(first, last) && len(batch) > b.cfg.DownsampleMin && b.cfg.DownsampleRatio > 1 {
		ds := make([]model.Bar, 0, len(batch)/b.cfg.DownsampleRatio+1)
		for i := 0; i < len(batch); i += b.cfg.DownsampleRatio {
			ds = append(ds, batch[i])
		}
		log.Printf("[buffer] %s: downsampled archive batch %d -> %d", b.symbol, len(batch), len(ds))
		batch = ds
	}

	dir := b.archiveDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create archive dir: %v", model.ErrPersistence, err)
	}
	name := fmt.Sprintf("%s_%s_%s_%s_%s.csv",
		b.symbol,
		first.Format("20060102"),
		last.Format("20060102"),
		b.cal.StateLabel(now),
		now.UTC().Format("20060102T150405"),
	)
	return writeBarsCSV(filepath.Join(dir, name), batch)
}

// Snapshot writes the full live window to the per-symbol current file,
// replacing any previous snapshot. This is the crash-recovery image.
func (b *SymbolBuffer) Snapshot() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.snapshotLocked(); err != nil {
		return err
	}
	b.lastBackup = b.now()
	return nil
}

func (b *SymbolBuffer) snapshotLocked() error {
	dir := b.symbolDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create data dir: %v", model.ErrPersistence, err)
	}
	path := filepath.Join(dir, "current.csv")
	tmp := path + ".tmp"
	if err := writeBarsCSV(tmp, b.bars); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: replace snapshot: %v", model.ErrPersistence, err)
	}
	return nil
}

// MaybeSnapshot runs the interval backup check outside the admission path,
// writing a snapshot only when the backup interval has elapsed. Returns
// whether a snapshot was written.
func (b *SymbolBuffer) MaybeSnapshot() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if b.cfg.BackupInterval <= 0 || now.Sub(b.lastBackup) < b.cfg.BackupInterval {
		return false, nil
	}
	if err := b.snapshotLocked(); err != nil {
		return false, err
	}
	b.lastBackup = now
	return true, nil
}

// LoadCurrent repopulates the live window from the snapshot file, bounded by
// the capacity for the current market state. Missing snapshot is not an
// error; a fresh buffer starts empty.
func (b *SymbolBuffer) LoadCurrent() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := filepath.Join(b.symbolDir(), "current.csv")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: open snapshot: %v", model.ErrPersistence, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("%w: read snapshot: %v", model.ErrPersistence, err)
	}

	bars := make([]model.Bar, 0, len(records))
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == model.CSVHeader[0] {
			continue
		}
		bar, err := model.BarFromCSV(rec)
		if err != nil {
			log.Printf("[buffer] %s: skipping bad snapshot row %d: %v", b.symbol, i, err)
			continue
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	capn := b.capacity(b.cal.IsOpen(b.now()))
	if len(bars) > capn {
		bars = bars[len(bars)-capn:]
	}
	b.bars = bars
	b.dupStreak = 0
	return len(bars), nil
}

// Window returns a copy of the last n bars in ascending time order, or all
// bars when fewer are held.
func (b *SymbolBuffer) Window(n int) []model.Bar {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.bars) {
		n = len(b.bars)
	}
	out := make([]model.Bar, n)
	copy(out, b.bars[len(b.bars)-n:])
	return out
}

// Len returns the current live window size.
func (b *SymbolBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bars)
}

// Stats scans the archive directory and reports the buffer diagnostics.
func (b *SymbolBuffer) Stats() Stats {
	b.mu.Lock()
	size := len(b.bars)
	streak := b.dupStreak
	lastBackup := b.lastBackup
	b.mu.Unlock()

	files, records := b.scanArchive()
	return Stats{
		CurrentSize:          size,
		ArchiveFileCount:     files,
		TotalArchivedRecords: records,
		LastBackupAt:         lastBackup,
		MarketStatus:         b.cal.StatusString(b.now()),
		DuplicateStreak:      streak,
	}
}

// scanArchive counts archive files and their data rows.
func (b *SymbolBuffer) scanArchive() (files, records int) {
	entries, err := os.ReadDir(b.archiveDir())
	if err != nil {
		return 0, 0
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		files++
		f, err := os.Open(filepath.Join(b.archiveDir(), e.Name()))
		if err != nil {
			continue
		}
		rows, err := csv.NewReader(f).ReadAll()
		f.Close()
		if err != nil {
			continue
		}
		if len(rows) > 0 {
			records += len(rows) - 1 // header
		}
	}
	return files, records
}

func (b *SymbolBuffer) symbolDir() string {
	return filepath.Join(b.cfg.DataDir, b.symbol)
}

func (b *SymbolBuffer) archiveDir() string {
	return filepath.Join(b.symbolDir(), "archive")
}

// writeBarsCSV writes header plus one row per bar.
func writeBarsCSV(path string, bars []model.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", model.ErrPersistence, filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(model.CSVHeader); err != nil {
		f.Close()
		return fmt.Errorf("%w: write header: %v", model.ErrPersistence, err)
	}
	for _, bar := range bars {
		if err := w.Write(bar.CSVRecord()); err != nil {
			f.Close()
			return fmt.Errorf("%w: write row: %v", model.ErrPersistence, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("%w: flush: %v", model.ErrPersistence, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", model.ErrPersistence, err)
	}
	return nil
}

// sameDay reports whether two instants fall on the same UTC calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
