// Package hset implements the named, lazily-faulted HLL set wrapper:
// persisted per-set configuration and counters, and the proxied/resident
// lifecycle described in spec §4.3.
package hset

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hlldsvc/hlld/internal/fs"
	"github.com/hlldsvc/hlld/internal/spinlock"
	"github.com/hlldsvc/hlld/pkg/bitmap"
	"github.com/hlldsvc/hlld/pkg/hll"
	"github.com/hlldsvc/hlld/pkg/hllconfig"
)

// lockFileName is the advisory flock(2) guard against two processes
// opening the same set directory concurrently (spec §1 models the set
// directory as exclusively owned by one manager; this is not itself a
// spec requirement but a safety net grounded in the teacher's own
// advisory-locking pattern, see internal/fs).
const lockFileName = ".lock"

var setLocker = fs.NewLocker(fs.NewReal())

// Counters tracks per-set lifetime activity. All fields are safe for
// concurrent use.
type Counters struct {
	Sets     atomic.Uint64
	PageIns  atomic.Uint64
	PageOuts atomic.Uint64
}

// Set is a named HLL estimator with a persisted config.ini and a
// lazily-faulted register Bitmap. The zero value is not usable; obtain
// one via [Open].
type Set struct {
	name    string
	dataDir string
	dir     string
	global  hllconfig.GlobalConfig
	logger  hllconfig.Logger

	mu    sync.Mutex  // guards fault-in / close / delete transitions
	addMu spinlock.T  // serializes HLL register writes

	cfg      hllconfig.SetConfig
	counters Counters

	bm    *bitmap.Bitmap // nil while proxied
	sk    *hll.HLL       // nil while proxied
	dirty atomic.Bool

	dirLock *fs.Lock // advisory guard against a second process opening dir
}

// Name returns the set's name.
func (s *Set) Name() string {
	return s.name
}

// IsResident reports whether the set currently has a live HLL and
// register Bitmap, as opposed to being proxied.
func (s *Set) IsResident() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bm != nil
}

// Counters exposes the set's lifetime activity counters.
func (s *Set) Counters() *Counters {
	return &s.counters
}

// WriteConfig persists cfg as the config.ini for name under dataDir,
// creating the set's directory if necessary. It is used by callers
// (the set manager) that need to seed a custom per-set configuration
// before the set is first opened.
func WriteConfig(dataDir, name string, cfg hllconfig.SetConfig) error {
	dir := hllconfig.SetDir(dataDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating set directory %s: %w: %w", dir, err, ErrIO)
	}

	return writeConfigIni(hllconfig.ConfigPath(dataDir, name), cfg)
}

// Open creates the set's directory if missing, loads config.ini if
// present (otherwise derives one from global and persists it
// immediately so later discovery passes succeed), and, when discover is
// true, performs an immediate fault-in.
func Open(global hllconfig.GlobalConfig, name string, discover bool, opts ...Option) (set *Set, err error) {
	s := &Set{
		name:    name,
		dataDir: global.DataDir,
		dir:     hllconfig.SetDir(global.DataDir, name),
		global:  global,
		logger:  hllconfig.NopLogger{},
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating set directory %s: %w: %w", s.dir, err, ErrIO)
	}

	lock, err := setLocker.TryLock(filepath.Join(s.dir, lockFileName))
	if err != nil {
		return nil, fmt.Errorf("locking set directory %s: %w: %w", s.dir, err, ErrIO)
	}

	s.dirLock = lock

	defer func() {
		if err != nil {
			_ = s.dirLock.Close()
		}
	}()

	cfgPath := hllconfig.ConfigPath(s.dataDir, s.name)

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		cfg, err := readConfigIni(cfgPath)
		if err != nil {
			// Corrupt config.ini falls back to defaults merged with global
			// configuration rather than preventing startup (spec §7).
			s.logger.Printf("hset: %s: config.ini unreadable, using defaults: %v", name, err)
			s.cfg = hllconfig.SetConfigFromGlobal(global)
			if err := s.cfg.Normalize(); err != nil {
				return nil, fmt.Errorf("deriving config for %s: %w", name, err)
			}
		} else {
			s.cfg = cfg
		}
	} else {
		s.cfg = hllconfig.SetConfigFromGlobal(global)
		if err := s.cfg.Normalize(); err != nil {
			return nil, fmt.Errorf("deriving config for %s: %w", name, err)
		}
	}

	if err := writeConfigIni(cfgPath, s.cfg); err != nil {
		return nil, fmt.Errorf("persisting initial config for %s: %w", name, err)
	}

	if discover {
		if err := s.faultIn(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Option customizes Set construction. Currently only used to inject a
// logger in tests and cmd/hlldctl.
type Option func(*Set)

// WithLogger overrides the default no-op logger.
func WithLogger(l hllconfig.Logger) Option {
	return func(s *Set) { s.logger = l }
}

// Add faults the set in if proxied, hashes key with the caller-supplied
// hash function, and folds the hash into the HLL under a spin lock that
// serializes register writes. It increments the sets counter and marks
// the set dirty.
func (s *Set) Add(key []byte, hash func([]byte) uint64) error {
	if err := s.faultIn(); err != nil {
		return fmt.Errorf("add to %s: %w: %w", s.name, err, ErrFaultIn)
	}

	h := hash(key)

	s.addMu.Lock()
	s.sk.Add(h)
	s.addMu.Unlock()

	s.counters.Sets.Add(1)
	s.dirty.Store(true)

	return nil
}

// Size returns the live estimate if resident, or the last persisted
// estimate if proxied.
func (s *Set) Size() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sk != nil {
		return s.sk.Estimate(), nil
	}

	return s.cfg.Size, nil
}

// ByteSize returns the bytes consumed by the register Bitmap, or, if
// proxied and never instantiated, the byte length implied by the set's
// persisted precision.
func (s *Set) ByteSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bm != nil {
		return s.bm.Len()
	}

	return hll.BytesForPrecision(s.cfg.DefaultPrecision)
}

// Flush is a no-op if proxied or not dirty; otherwise it writes the
// current estimate into the persisted config, persists config.ini, and
// flushes the register Bitmap. It clears the dirty flag on success.
func (s *Set) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked()
}

func (s *Set) flushLocked() error {
	if s.bm == nil || !s.dirty.Load() {
		return nil
	}

	s.cfg.Size = s.sk.Estimate()

	if err := writeConfigIni(hllconfig.ConfigPath(s.dataDir, s.name), s.cfg); err != nil {
		return fmt.Errorf("flush %s: %w", s.name, err)
	}

	if err := s.bm.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", s.name, err)
	}

	s.dirty.Store(false)

	return nil
}

// Close flushes and releases the register Bitmap if resident, marking
// the set proxied. It is a no-op on an already-proxied set.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bm == nil {
		return nil
	}

	flushErr := s.flushLocked()

	closeErr := s.bm.Close()
	s.bm = nil
	s.sk = nil
	s.counters.PageOuts.Add(1)

	if flushErr != nil {
		return flushErr
	}

	if closeErr != nil {
		return fmt.Errorf("closing bitmap for %s: %w", s.name, closeErr)
	}

	return nil
}

// Delete closes the set, then best-effort unlinks its register file,
// config.ini, and directory. Individual unlink failures are logged, not
// returned: deletion always proceeds as far as it can.
func (s *Set) Delete() error {
	if err := s.Close(); err != nil {
		s.logger.Printf("hset: %s: close during delete: %v", s.name, err)
	}

	if err := os.Remove(hllconfig.RegisterPath(s.dataDir, s.name)); err != nil && !os.IsNotExist(err) {
		s.logger.Printf("hset: %s: removing registers.mmap: %v", s.name, err)
	}

	if err := os.Remove(hllconfig.ConfigPath(s.dataDir, s.name)); err != nil && !os.IsNotExist(err) {
		s.logger.Printf("hset: %s: removing config.ini: %v", s.name, err)
	}

	if s.dirLock != nil {
		if err := s.dirLock.Close(); err != nil {
			s.logger.Printf("hset: %s: releasing directory lock: %v", s.name, err)
		}
	}

	if err := os.Remove(filepath.Join(s.dir, lockFileName)); err != nil && !os.IsNotExist(err) {
		s.logger.Printf("hset: %s: removing lock file: %v", s.name, err)
	}

	if err := os.Remove(s.dir); err != nil && !os.IsNotExist(err) {
		s.logger.Printf("hset: %s: removing directory: %v", s.name, err)
	}

	return nil
}

// faultIn performs the atomic proxied-to-resident transition (spec
// §4.3 "Fault-in protocol"). It is a no-op if already resident.
func (s *Set) faultIn() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bm != nil {
		return nil
	}

	mode := bitmap.Persistent
	switch {
	case s.cfg.InMemory:
		mode = bitmap.Anonymous
	case s.global.UseMmap:
		mode = bitmap.Shared
	}

	wantBytes := hll.BytesForPrecision(s.cfg.DefaultPrecision)

	var opts bitmap.Options
	existed := false

	if mode == bitmap.Anonymous {
		opts = bitmap.Options{Mode: bitmap.Anonymous, Len: wantBytes}
	} else {
		path := hllconfig.RegisterPath(s.dataDir, s.name)

		if fi, err := os.Stat(path); err == nil {
			existed = true

			if int(fi.Size()) != wantBytes {
				return fmt.Errorf("%s: on-disk register file is %d bytes, precision %d needs %d: %w",
					s.name, fi.Size(), s.cfg.DefaultPrecision, wantBytes, ErrCorrupt)
			}
		}

		opts = bitmap.Options{Mode: mode, Path: path, Len: wantBytes, Create: true}
	}

	bm, err := bitmap.Open(opts)
	if err != nil {
		return fmt.Errorf("%s: opening register bitmap: %w", s.name, err)
	}

	sk, err := hll.New(bm, s.cfg.DefaultPrecision)
	if err != nil {
		_ = bm.Close()
		return fmt.Errorf("%s: building sketch: %w", s.name, err)
	}

	s.bm = bm
	s.sk = sk

	if existed {
		s.counters.PageIns.Add(1)
	}

	return nil
}
