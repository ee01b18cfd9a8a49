package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lerrors "github.com/jittakal/logaggregator/internal/errors"
	"github.com/jittakal/logaggregator/pkg/storage"
	"github.com/jittakal/logaggregator/pkg/store"
)

var _ store.Store = (*FileStore)(nil)
var _ store.Readable = (*FileStore)(nil)

const metaHeaderFormat = "<scribe_meta><chunk_size>%d</chunk_size></scribe_meta>\n"

// FileStore writes raw framed messages to a rotating file family and,
// when configured as a buffer file, doubles as a disk queue readable by
// BufferStore's drain algorithm. Writes go through FileStoreBase's
// dense-suffix rotation.
type FileStore struct {
	base *fileStoreBase

	mu sync.Mutex
	category string
	addNewlines bool
	isBufferFile bool
	status string
	statusMu sync.Mutex
	now func() time.Time
}

// NewFileStore constructs a FileStore over the given filesystem. now
// supplies wall-clock time and is overridable for tests.
func NewFileStore(fs storage.Filesystem, logger *slog.Logger, category string, now func() time.Time) *FileStore {
	if now == nil {
		now = time.Now
	}
	return &FileStore{
		base: newFileStoreBase(fs, logger),
		category: category,
		now: now,
	}
}

func (s *FileStore) Configure(opts store.ConfigOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := map[string]string(opts)
	s.base.configure(m)
	s.addNewlines = opts.Bool("add_newlines", true)
	s.isBufferFile = opts.Bool("is_buffer_file", false)
	return nil
}

func (s *FileStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base.isOpen() {
		return nil
	}
	if err := s.base.openInternal(false, s.now()); err != nil {
		s.setStatus(fmt.Sprintf("open failed: %v", err))
		return &lerrors.StorageError{Operation: "open", Path: s.base.filePath, Err: err}
	}
	s.setStatus("")
	return nil
}

func (s *FileStore) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.isOpen()
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.close()
}

func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.flush()
}

func (s *FileStore) GetStatus() string {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *FileStore) setStatus(msg string) {
	s.statusMu.Lock()
	s.status = msg
	s.statusMu.Unlock()
}

func (s *FileStore) CopyForCategory(category string) (store.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := NewFileStore(s.base.fs, s.base.logger, category, s.now)
	clone.base.filePath = s.base.filePath
	clone.base.baseFileName = s.base.baseFileName
	clone.base.maxSize = s.base.maxSize
	clone.base.roll = s.base.roll
	clone.base.rollHour = s.base.rollHour
	clone.base.rollMinute = s.base.rollMinute
	clone.base.chunkSize = s.base.chunkSize
	clone.base.writeMeta = s.base.writeMeta
	clone.base.writeCategory = s.base.writeCategory
	clone.base.createSymlink = s.base.createSymlink
	clone.base.fileSuffix = s.base.fileSuffix
	clone.addNewlines = s.addNewlines
	clone.isBufferFile = s.isBufferFile
	return clone, nil
}

// PeriodicCheck rotates the current file if any rotation trigger fires.
func (s *FileStore) PeriodicCheck(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.base.needsRotation(now) {
		if err := s.base.rotate(now); err != nil {
			s.setStatus(fmt.Sprintf("rotation failed: %v", err))
		}
	}
}

// HandleMessages serializes each entry as `[category "\t"] message
// ["\n"]`, applying chunk padding and the optional write_meta header.
func (s *FileStore) HandleMessages(ctx context.Context, batch store.MessageBatch) (bool, store.MessageBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.base.needsRotation(now) {
		if err := s.base.rotate(now); err != nil {
			s.setStatus(fmt.Sprintf("rotation failed: %v", err))
			return false, batch
		}
	}
	if !s.base.isOpen() {
		if err := s.base.openInternal(false, now); err != nil {
			s.setStatus(fmt.Sprintf("open failed: %v", err))
			return false, batch
		}
	}

	if s.base.writeMeta && !s.base.metaWritten {
		header := fmt.Sprintf(metaHeaderFormat, s.base.chunkSize)
		if err := s.base.write([]byte(header)); err != nil {
			s.setStatus(fmt.Sprintf("write failed: %v", err))
			return false, batch.Residual(0)
		}
		s.base.metaWritten = true
	}

	for i, entry := range batch {
		record := s.encodeRecord(entry)
		if err := s.base.write(record); err != nil {
			s.setStatus(fmt.Sprintf("write failed: %v", err))
			return false, batch.Residual(i)
		}
	}
	s.setStatus("")
	return true, nil
}

func (s *FileStore) encodeRecord(entry store.LogEntry) []byte {
	var buf []byte
	if s.base.writeCategory {
		buf = append(buf, []byte(entry.Category)...)
		buf = append(buf, '\t')
	}
	buf = append(buf, entry.Message...)
	if s.addNewlines {
		buf = append(buf, '\n')
	}
	return buf
}

func (s *FileStore) IsMultiCategory() bool { return false }

// --- Readable, only meaningful when is_buffer_file=true ---

// Empty reports whether there is nothing left to read: no file exists,
// or the oldest file's date is not strictly before now (never consume
// the file currently being written into this wall-clock interval).
func (s *FileStore) Empty(now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	date := time.Unix(now, 0).UTC().Format("2006-01-02")
	oldestDate, ok := s.oldestDate(date)
	if !ok {
		return true
	}
	return oldestDate >= date
}

// oldestDate finds the earliest base-date directory entry with at least
// one suffix, scanning back from today; buffer directories are small so
// a linear scan of candidate dates is adequate.
func (s *FileStore) oldestDate(today string) (string, bool) {
	names, err := s.base.fs.ReadDir(s.base.filePath)
	if err != nil {
		return "", false
	}
	prefix := s.base.baseFileName + "_"
	var dates []string
	for _, name := range names {
		if len(name) < len(prefix)+10 || name[:len(prefix)] != prefix {
			continue
		}
		date := name[len(prefix) : len(prefix)+10]
		dates = append(dates, date)
	}
	if len(dates) == 0 {
		return "", false
	}
	oldest := dates[0]
	for _, d := range dates[1:] {
		if d < oldest {
			oldest = d
		}
	}
	return oldest, true
}

func (s *FileStore) ReadOldest(now int64) (store.MessageBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	date := time.Unix(now, 0).UTC().Format("2006-01-02")
	oldestDate, ok := s.oldestDate(date)
	if !ok || oldestDate >= date {
		return nil, nil
	}
	suffix, ok, err := s.base.findOldestFile(oldestDate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	path := s.base.fullPath(oldestDate, suffix)
	lines, err := s.base.readLines(path)
	if err != nil {
		return nil, &lerrors.StorageError{Operation: "open", Path: path, Err: err}
	}
	return s.decodeLines(lines), nil
}

func (s *FileStore) decodeLines(lines [][]byte) store.MessageBatch {
	batch := make(store.MessageBatch, 0, len(lines))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		if s.base.writeMeta && len(batch) == 0 && isMetaHeader(line) {
			continue
		}
		entry := store.LogEntry{Category: s.category, Message: line}
		if s.base.writeCategory {
			if idx := indexByte(line, '\t'); idx >= 0 {
				entry.Category = string(line[:idx])
				entry.Message = line[idx+1:]
			}
		}
		batch = append(batch, entry)
	}
	return batch
}

func isMetaHeader(line []byte) bool {
	return len(line) > 12 && string(line[:12]) == "<scribe_meta"
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func (s *FileStore) DeleteOldest(now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	date := time.Unix(now, 0).UTC().Format("2006-01-02")
	oldestDate, ok := s.oldestDate(date)
	if !ok {
		return nil
	}
	suffix, ok, err := s.base.findOldestFile(oldestDate)
	if err != nil || !ok {
		return err
	}
	return s.base.fs.Remove(s.base.fullPath(oldestDate, suffix))
}

func (s *FileStore) ReplaceOldest(batch store.MessageBatch, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	date := time.Unix(now, 0).UTC().Format("2006-01-02")
	oldestDate, ok := s.oldestDate(date)
	if !ok {
		return fmt.Errorf("replace_oldest: no buffer file to replace")
	}
	suffix, ok, err := s.base.findOldestFile(oldestDate)
	if err != nil || !ok {
		return err
	}
	path := s.base.fullPath(oldestDate, suffix)
	wc, err := s.base.fs.Create(path)
	if err != nil {
		return err
	}
	defer wc.Close()
	for _, entry := range batch {
		record := s.encodeRecord(entry)
		if _, err := wc.Write(record); err != nil {
			return err
		}
	}
	return nil
}
