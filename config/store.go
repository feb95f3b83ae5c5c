package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Store owns the configuration document and persists it to a file.
//
// Changes are never written immediately; Run polls the serialized form and
// saves once it has changed and then stayed the same for one interval.
type Store struct {
	file string
	log  *slog.Logger

	mx      sync.Mutex
	data    Config
	prev    []byte
	changed bool
}

// Load reads file and merges it over the defaults. A missing file yields
// the defaults.
func Load(file string, log *slog.Logger) (*Store, error) {
	s := &Store{
		file: file,
		log:  log,
		data: Defaults(),
	}

	data, err := os.ReadFile(file)
	switch {
	case os.IsNotExist(err):
		log.Info("config file not found, using defaults", "file", file)
	case err != nil:
		return nil, errors.Wrap(err, "read config")
	default:
		err = s.merge(data)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", file)
		}
	}

	s.prev, err = json.Marshal(s.data)
	if err != nil {
		return nil, errors.Wrap(err, "marshal config")
	}
	return s, nil
}

// NewStore returns an in-memory store seeded with cfg. Save is a no-op
// when file is empty.
func NewStore(cfg Config, file string, log *slog.Logger) *Store {
	prev, _ := json.Marshal(cfg)
	return &Store{file: file, log: log, data: cfg.Clone(), prev: prev}
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.data.Clone()
}

// Merge validates a JSON patch and deep-merges it into the configuration.
// Objects merge recursively, other values replace, and null removes a key.
func (s *Store) Merge(patch []byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.merge(patch)
}

func (s *Store) merge(patch []byte) error {
	err := Validate(patch)
	if err != nil {
		return err
	}

	var p map[string]interface{}
	err = json.Unmarshal(patch, &p)
	if err != nil {
		return errors.Wrap(err, "decode patch")
	}

	cur, err := toMap(s.data)
	if err != nil {
		return err
	}
	merged, err := json.Marshal(mergeMaps(cur, p))
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	err = Validate(merged)
	if err != nil {
		return err
	}

	var cfg Config
	err = json.Unmarshal(merged, &cfg)
	if err != nil {
		return errors.Wrap(err, "decode config")
	}
	s.data = cfg
	return nil
}

// Update applies fn to the configuration under the store lock.
func (s *Store) Update(fn func(*Config)) {
	s.mx.Lock()
	defer s.mx.Unlock()
	fn(&s.data)
}

// Save writes the configuration to disk.
func (s *Store) Save() error {
	s.mx.Lock()
	data, err := json.MarshalIndent(s.data, "", "  ")
	s.mx.Unlock()
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if s.file == "" {
		return nil
	}

	f, err := os.CreateTemp(filepath.Dir(s.file), ".config-*")
	if err != nil {
		return errors.Wrap(err, "create temp config")
	}
	defer os.Remove(f.Name())

	_, err = f.Write(append(data, '\n'))
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		return errors.Wrap(err, "write config")
	}
	return errors.Wrap(os.Rename(f.Name(), s.file), "replace config")
}

// Run polls for changes every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if s.changed {
				s.flush()
			}
			return
		case <-t.C:
			s.poll()
		}
	}
}

// poll reports whether a save was attempted.
func (s *Store) poll() bool {
	s.mx.Lock()
	data, err := json.Marshal(s.data)
	s.mx.Unlock()
	if err != nil {
		s.log.Error("marshal config", "err", err)
		return false
	}

	if !bytes.Equal(data, s.prev) {
		s.prev = data
		s.changed = true
		return false
	}
	if !s.changed {
		return false
	}

	s.flush()
	return true
}

func (s *Store) flush() {
	s.changed = false
	s.log.Info("saving configuration", "file", s.file)
	err := s.Save()
	if err != nil {
		s.log.Error("save config", "err", err)
	}
}

// LastPosition returns the persisted position checkpoint.
func (s *Store) LastPosition() Position {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.data.LastPosition.clone()
}

// SetLastPosition records a position checkpoint. Values are rounded to
// 1e-3 mm and non-finite values are dropped.
func (s *Store) SetLastPosition(p Position) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.data.LastPosition = Position{
		XMm: round3(p.XMm),
		YMm: round3(p.YMm),
		ZMm: round3(p.ZMm),
	}
}

func round3(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	r := math.Round(*v*1000) / 1000
	return &r
}

func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	var m map[string]interface{}
	err = json.Unmarshal(data, &m)
	return m, errors.Wrap(err, "decode config")
}

func mergeMaps(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		sm, ok := v.(map[string]interface{})
		if !ok {
			dst[k] = v
			continue
		}
		dm, _ := dst[k].(map[string]interface{})
		dst[k] = mergeMaps(dm, sm)
	}
	return dst
}
