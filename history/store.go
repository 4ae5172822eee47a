package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/screener/kv"
	"github.com/pithecene-io/screener/log"
	"github.com/pithecene-io/screener/metrics"
)

// DefaultKey is the versioned storage key of the history blob.
const DefaultKey = "screener.history.v1"

// MaxEntries caps the history length.
const MaxEntries = 30

// Codec selects the blob serialization.
type Codec string

const (
	// CodecJSON stores the log as a JSON array (default).
	CodecJSON Codec = "json"
	// CodecMsgpack stores the log as a msgpack array under "<key>.msgpack".
	CodecMsgpack Codec = "msgpack"
)

// ParseCodec validates a codec name. An empty name is CodecJSON.
func ParseCodec(name string) (Codec, error) {
	switch Codec(name) {
	case "", CodecJSON:
		return CodecJSON, nil
	case CodecMsgpack:
		return CodecMsgpack, nil
	default:
		return "", fmt.Errorf("unknown history codec %q (must be json or msgpack)", name)
	}
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithCodec selects the blob serialization.
func WithCodec(c Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the collector counting persistence outcomes.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// Store is the single owner of the persisted history log.
// All mutations are serialized, so concurrent pushes never drop an entry.
type Store struct {
	mu      sync.Mutex
	backend kv.Store
	key     string
	codec   Codec
	logger  *log.Logger
	metrics *metrics.Collector

	entries Log
	loaded  bool
	// unsaved holds pushed entries not yet confirmed by a Put,
	// most recent first.
	unsaved Log
}

// New creates a store over backend.
func New(backend kv.Store, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("history store requires a backend")
	}
	s := &Store{backend: backend, key: DefaultKey, codec: CodecJSON}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == "" {
		return nil, errors.New("history store requires a key")
	}
	if _, err := ParseCodec(string(s.codec)); err != nil {
		return nil, err
	}
	return s, nil
}

// StorageKey returns the backend key holding the blob.
func (s *Store) StorageKey() string {
	if s.codec == CodecJSON {
		return s.key
	}
	return s.key + "." + string(s.codec)
}

// Load reads the persisted log, replacing the in-memory copy.
// A missing or undecodable blob yields an empty log. When the backend
// read fails the in-memory log is kept as is.
func (s *Store) Load(ctx context.Context) Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	return s.entries.clone()
}

// Push prepends entry, truncates to MaxEntries, and persists the whole log.
// Returns the updated log.
//
// The blob is only rewritten once a load has succeeded, so a failed read
// never replaces good persisted history. Until then the entry is kept in
// memory and merged in by the next successful load.
func (s *Store) Push(ctx context.Context, entry Entry) Log {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.loadLocked(ctx)
	}

	s.entries = prepend(entry, s.entries)
	s.unsaved = prepend(entry, s.unsaved)

	if !s.loaded {
		s.metrics.IncHistoryWriteFailure()
		s.logger.Warn("history write deferred until load succeeds", map[string]any{
			"key":     s.StorageKey(),
			"pending": len(s.unsaved),
		})
		return s.entries.clone()
	}
	s.persistLocked(ctx)
	return s.entries.clone()
}

func prepend(e Entry, l Log) Log {
	next := make(Log, 0, min(len(l)+1, MaxEntries))
	next = append(next, e)
	next = append(next, l...)
	if len(next) > MaxEntries {
		next = next[:MaxEntries]
	}
	return next
}

// Clear empties the log and deletes the persisted blob.
func (s *Store) Clear(ctx context.Context) Log {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = Log{}
	s.unsaved = nil
	s.loaded = true

	if err := s.backend.Delete(ctx, s.StorageKey()); err != nil {
		s.metrics.IncHistoryWriteFailure()
		s.logger.Warn("history clear failed", map[string]any{
			"key":   s.StorageKey(),
			"error": err.Error(),
		})
	}
	return Log{}
}

// Entries returns the in-memory log without touching the backend.
func (s *Store) Entries() Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.clone()
}

// Find returns the in-memory entry with the given id.
func (s *Store) Find(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Find(id)
}

// loadLocked reads the blob. A read error leaves the store unloaded and
// the in-memory log untouched.
func (s *Store) loadLocked(ctx context.Context) {
	var persisted Log
	blob, err := s.backend.Get(ctx, s.StorageKey())
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		s.metrics.IncHistoryLoadFailure()
		s.logger.Warn("history load failed", map[string]any{
			"key":   s.StorageKey(),
			"error": err.Error(),
		})
		return
	default:
		persisted, err = s.decode(blob)
		if err != nil {
			s.metrics.IncHistoryLoadFailure()
			s.logger.Warn("history blob corrupt, starting empty", map[string]any{
				"key":   s.StorageKey(),
				"bytes": len(blob),
				"error": err.Error(),
			})
			persisted = nil
		}
	}

	s.loaded = true
	s.entries = merge(s.unsaved, persisted)
	if len(s.unsaved) > 0 {
		s.persistLocked(ctx)
	}
}

// merge puts unsaved entries ahead of persisted ones, skipping ids
// already present, capped at MaxEntries.
func merge(unsaved, persisted Log) Log {
	out := make(Log, 0, min(len(unsaved)+len(persisted), MaxEntries))
	seen := make(map[string]struct{}, len(unsaved))
	for _, e := range unsaved {
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	for _, e := range persisted {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		out = append(out, e)
	}
	if len(out) > MaxEntries {
		out = out[:MaxEntries]
	}
	return out
}

func (s *Store) persistLocked(ctx context.Context) {
	blob, err := s.encode(s.entries)
	if err == nil {
		err = s.backend.Put(ctx, s.StorageKey(), blob)
	}
	if err != nil {
		s.metrics.IncHistoryWriteFailure()
		s.logger.Warn("history write failed", map[string]any{
			"key":     s.StorageKey(),
			"entries": len(s.entries),
			"error":   err.Error(),
		})
		return
	}
	s.unsaved = nil
	s.metrics.IncHistoryWriteSuccess()
}

func (s *Store) encode(entries Log) ([]byte, error) {
	if entries == nil {
		entries = Log{}
	}
	switch s.codec {
	case CodecMsgpack:
		return msgpack.Marshal([]Entry(entries))
	default:
		return json.Marshal([]Entry(entries))
	}
}

func (s *Store) decode(blob []byte) (Log, error) {
	var entries []Entry
	var err error
	switch s.codec {
	case CodecMsgpack:
		err = msgpack.Unmarshal(blob, &entries)
	default:
		err = json.Unmarshal(blob, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s history: %w", s.codec, err)
	}
	return Log(entries), nil
}
