// Package store implements the store pipeline: the leaf sinks
// (NullStore, FileStore, FramedFileStore, NetworkStore) and the
// compositional operators (BufferStore, MultiStore, BucketStore,
// CategoryStore and its file-model specializations) that sit behind
// pkg/store.Store.
package store

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/logaggregator/pkg/storage"
)

const (
	defaultMaxSize = 1 << 30 // 1 GiB default

	statsFileSuffix = "_stats"
	currentSuffix = "_current"
)

// rollPeriod mirrors the roll_period_t enum from Scribe's store.h.
type rollPeriod int

const (
	rollNever rollPeriod = iota
	rollHourly
	rollDaily
)

func parseRollPeriod(s string) rollPeriod {
	switch s {
	case "hourly":
		return rollHourly
	case "daily":
		return rollDaily
	default:
		return rollNever
	}
}

// suffixPattern matches "<base>_<NNNNN>" components of a rotated
// filename once the date-qualified base has been stripped.
var suffixPattern = regexp.MustCompile(`^_(\d{5})(\..+)?$`)

// fileStoreBase is the rotation/naming/rolling engine shared by
// FileStore and FramedFileStore, each holding it through a *fileStoreBase
// field: a helper consumed by both, not a base type. Its state is guarded
// by the owning store's mutex; it logs every file it opens.
type fileStoreBase struct {
	mu sync.Mutex

	fs storage.Filesystem
	logger *slog.Logger

	filePath string
	baseFileName string
	maxSize int64
	roll rollPeriod
	rollHour int
	rollMinute int
	chunkSize int64
	writeMeta bool
	writeCategory bool
	createSymlink bool
	fileSuffix string // optional extension, e.g. ".log"

	writeCloser io.WriteCloser
	currentSize int64
	eventsWritten int
	currentSuffix int
	currentDate string
	lastRollTime time.Time
	metaWritten bool
}

func newFileStoreBase(fs storage.Filesystem, logger *slog.Logger) *fileStoreBase {
	return &fileStoreBase{
		fs: fs,
		logger: logger,
		maxSize: defaultMaxSize,
		roll: rollNever,
		rollHour: 0,
		rollMinute: 0,
	}
}

// configure applies the FileStoreBase-recognized options.
// Returns the set of keys it consumed so FileStore/FramedFileStore can
// warn on anything left unrecognized.
func (b *fileStoreBase) configure(opts map[string]string) map[string]bool {
	consumed := map[string]bool{}
	get := func(k string) (string, bool) { v, ok := opts[k]; consumed[k] = ok || consumed[k]; return v, ok }

	if v, ok := get("file_path"); ok {
		b.filePath = v
	}
	if v, ok := get("base_filename"); ok {
		b.baseFileName = v
	}
	if v, ok := get("max_size"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			b.maxSize = n
		}
	}
	if v, ok := get("roll_period"); ok {
		b.roll = parseRollPeriod(v)
	}
	if v, ok := get("roll_hour"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			b.rollHour = n
		}
	}
	if v, ok := get("roll_minute"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			b.rollMinute = n
		}
	}
	if v, ok := get("chunk_size"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			b.chunkSize = n
		}
	}
	if _, ok := get("fs_type"); ok {
		// Dispatched by the factory when constructing b.fs; nothing to do
		// here beyond marking the key recognized.
	}
	if _, ok := get("remote_backend"); ok {
		// Same: consumed by the factory.
	}
	if v, ok := get("write_meta"); ok {
		b.writeMeta = parseBool(v, b.writeMeta)
	}
	if v, ok := get("write_category"); ok {
		b.writeCategory = parseBool(v, b.writeCategory)
	}
	if v, ok := get("create_symlink"); ok {
		b.createSymlink = parseBool(v, b.createSymlink)
	}
	if v, ok := get("file_suffix"); ok {
		b.fileSuffix = v
	}
	return consumed
}

func parseBool(v string, def bool) bool {
	switch v {
	case "yes", "true", "1":
		return true
	case "no", "false", "0":
		return false
	default:
		return def
	}
}

func (b *fileStoreBase) baseName(date string) string {
	return fmt.Sprintf("%s_%s", b.baseFileName, date)
}

func (b *fileStoreBase) fullName(date string, suffix int) string {
	name := fmt.Sprintf("%s_%05d", b.baseName(date), suffix)
	if b.fileSuffix != "" {
		name += b.fileSuffix
	}
	return name
}

func (b *fileStoreBase) fullPath(date string, suffix int) string {
	return filepath.Join(b.filePath, b.fullName(date, suffix))
}

// findSuffixes scans the directory for filenames matching the given
// base date and returns their numeric suffixes, sorted ascending. Entries
// that don't match the base prefix or whose suffix doesn't parse are
// ignored.
func (b *fileStoreBase) findSuffixes(date string) ([]int, error) {
	names, err := b.fs.ReadDir(b.filePath)
	if err != nil {
		return nil, err
	}
	prefix := b.baseName(date)
	var suffixes []int
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		m := suffixPattern.FindStringSubmatch(rest)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		suffixes = append(suffixes, n)
	}
	sort.Ints(suffixes)
	return suffixes, nil
}

// findOldestFile returns the oldest suffix for the given date, or false
// if there are none.
func (b *fileStoreBase) findOldestFile(date string) (int, bool, error) {
	suffixes, err := b.findSuffixes(date)
	if err != nil || len(suffixes) == 0 {
		return 0, false, err
	}
	return suffixes[0], true, nil
}

// findNewestFile returns the newest suffix for the given date, or false
// if there are none.
func (b *fileStoreBase) findNewestFile(date string) (int, bool, error) {
	suffixes, err := b.findSuffixes(date)
	if err != nil || len(suffixes) == 0 {
		return 0, false, err
	}
	return suffixes[len(suffixes)-1], true, nil
}

// bytesToPad returns the number of NUL bytes needed so msg does not
// straddle a chunk-aligned boundary.
func bytesToPad(msgLen int, curSize int64, chunk int64) int64 {
	if chunk == 0 || int64(msgLen) > chunk {
		return 0
	}
	offsetInChunk := curSize % chunk
	remaining := chunk - offsetInChunk
	if int64(msgLen) <= remaining {
		return 0
	}
	return remaining
}

// openInternal opens the current file, optionally incrementing to the
// next suffix. now is the wall-clock time driving date/roll decisions.
func (b *fileStoreBase) openInternal(incrementFilename bool, now time.Time) error {
	date := now.Format("2006-01-02")

	suffix := 0
	if date == b.currentDate && !incrementFilename {
		suffix = b.currentSuffix
	} else if newest, ok, err := b.findNewestFile(date); err == nil && ok {
		suffix = newest
		if incrementFilename || date != b.currentDate {
			suffix++
		}
	} else if err != nil {
		return err
	} else if incrementFilename {
		suffix = 0
	}

	path := b.fullPath(date, suffix)
	wc, err := b.fs.Create(path)
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}

	if b.writeCloser != nil {
		_ = b.writeCloser.Close()
	}
	b.writeCloser = wc
	b.currentDate = date
	b.currentSuffix = suffix
	b.currentSize = 0
	b.eventsWritten = 0
	b.lastRollTime = now
	b.metaWritten = false

	if b.createSymlink {
		link := filepath.Join(b.filePath, b.baseFileName+currentSuffix)
		if err := b.fs.Symlink(path, link); err != nil {
			b.logger.Warn("symlink update failed", "link", link, "error", err)
		}
	}

	b.logger.Info("file store opened file", "path", path, "suffix", suffix)
	return nil
}

// needsRotation evaluates the size/hourly/daily triggers, checked in
// periodic_check and before each write.
func (b *fileStoreBase) needsRotation(now time.Time) bool {
	if b.writeCloser == nil {
		return false
	}
	if b.currentSize >= b.maxSize {
		return true
	}
	switch b.roll {
	case rollHourly:
		if now.Hour() != b.lastRollTime.Hour() || now.Day() != b.lastRollTime.Day() {
			return true
		}
	case rollDaily:
		afterRollTime := now.Hour() > b.rollHour || (now.Hour() == b.rollHour && now.Minute() >= b.rollMinute)
		if afterRollTime && now.Day() != b.lastRollTime.Day() {
			return true
		}
	}
	return false
}

// rotate closes the current file and opens the next suffix, writing a
// stats sidecar line first. Rotation failure preserves the previously
// open file — no data loss, failure semantics.
func (b *fileStoreBase) rotate(now time.Time) error {
	if err := b.writeStats(now); err != nil {
		b.logger.Warn("stats sidecar write failed", "error", err)
	}
	return b.openInternal(true, now)
}

func (b *fileStoreBase) writeStats(now time.Time) error {
	if b.writeCloser == nil {
		return nil
	}
	statsPath := filepath.Join(b.filePath, b.baseFileName+statsFileSuffix)
	var prev []byte
	if rc, err := b.fs.Open(statsPath); err == nil {
		prev, _ = io.ReadAll(rc)
		rc.Close()
	}
	f, err := b.fs.Create(statsPath)
	if err != nil {
		return err
	}
	defer f.Close()
	line := fmt.Sprintf("%s\t%d\t%d\t%s\n",
		b.fullName(b.currentDate, b.currentSuffix), b.currentSize, b.eventsWritten, now.Format(time.RFC3339))
	_, err = f.Write(append(prev, line...))
	return err
}

// write appends a single already-framed record, handling chunk padding
// and size/event bookkeeping. Callers hold the owning store's mutex.
func (b *fileStoreBase) write(record []byte) error {
	if b.writeCloser == nil {
		return fmt.Errorf("file store not open")
	}
	if pad := bytesToPad(len(record), b.currentSize, b.chunkSize); pad > 0 {
		if _, err := b.writeCloser.Write(make([]byte, pad)); err != nil {
			return err
		}
		b.currentSize += pad
	}
	n, err := b.writeCloser.Write(record)
	if err != nil {
		return err
	}
	b.currentSize += int64(n)
	b.eventsWritten++
	return nil
}

func (b *fileStoreBase) flush() error {
	if f, ok := b.writeCloser.(*os.File); ok {
		return f.Sync()
	}
	return nil
}

func (b *fileStoreBase) close() error {
	if b.writeCloser == nil {
		return nil
	}
	err := b.writeCloser.Close()
	b.writeCloser = nil
	return err
}

func (b *fileStoreBase) isOpen() bool {
	return b.writeCloser != nil
}

// readLines opens and fully reads the named rotation file as lines,
// used by FileStore's Readable implementation.
func (b *fileStoreBase) readLines(path string) ([][]byte, error) {
	rc, err := b.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
