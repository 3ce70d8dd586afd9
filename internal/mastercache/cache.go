// Package mastercache implements the read-through master-call cache:
// memory, then an on-disk .mfc file, then a recompute from the source WAV,
// with concurrent loads of the same id de-duplicated.
package mastercache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/huntmaster/callcoach/internal/mfcc"
	"github.com/huntmaster/callcoach/internal/sample"
	"github.com/huntmaster/callcoach/internal/wavio"
)

// Handle is an immutable, shared, read-only view of one master call's MFCC
// sequence. Safe to borrow concurrently by any number of sessions.
type Handle struct {
	ID         string
	SampleRate int
	Vectors    [][]float64
	NumCoeffs  int
}

// Cache is a many-reader / rare-writer store keyed by master-call id.
type Cache struct {
	masterCallsDir string
	featuresDir    string
	mfccCfg        mfcc.Config

	mem    *ristretto.Cache[string, *Handle]
	single singleflight.Group
	log    *log.Logger
}

// New constructs a Cache rooted at the given directories, using mfccCfg to
// recompute features on a cold miss. maxCostMB bounds the in-memory tier's
// approximate footprint.
func New(masterCallsDir, featuresDir string, mfccCfg mfcc.Config, maxCostMB int64) (*Cache, error) {
	return NewWithLogger(masterCallsDir, featuresDir, mfccCfg, maxCostMB, nil)
}

// NewWithLogger is New with an explicit logger for cache hit/miss/publish
// events; a nil logger discards everything.
func NewWithLogger(masterCallsDir, featuresDir string, mfccCfg mfcc.Config, maxCostMB int64, logger *log.Logger) (*Cache, error) {
	mem, err := ristretto.NewCache(&ristretto.Config[string, *Handle]{
		NumCounters: 10_000,
		MaxCost:     maxCostMB * 1024 * 1024,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("mastercache: create in-memory cache: %w", err)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Cache{
		masterCallsDir: masterCallsDir,
		featuresDir:    featuresDir,
		mfccCfg:        mfccCfg,
		mem:            mem,
		log:            logger.With("component", "mastercache"),
	}, nil
}

func (c *Cache) featurePath(id string) string {
	return filepath.Join(c.featuresDir, id+".mfc")
}

func (c *Cache) audioPath(id string) string {
	return filepath.Join(c.masterCallsDir, id+".wav")
}

// Get returns the shared handle for id, loading and publishing it if this
// is the first request. Concurrent callers requesting the same id share a
// single load.
func (c *Cache) Get(id string) (*Handle, error) {
	if h, ok := c.mem.Get(id); ok {
		return h, nil
	}

	v, err, _ := c.single.Do(id, func() (interface{}, error) {
		if h, ok := c.mem.Get(id); ok {
			return h, nil
		}
		return c.load(id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (c *Cache) load(id string) (*Handle, error) {
	if h, err := c.loadFromDisk(id); err == nil {
		c.log.Debug("loaded from disk", "id", id, "frames", len(h.Vectors))
		c.publish(id, h)
		return h, nil
	}
	c.log.Debug("disk miss, recomputing from source audio", "id", id)
	return c.loadFromSourceAudio(id)
}

func (c *Cache) loadFromDisk(id string) (*Handle, error) {
	data, err := os.ReadFile(c.featurePath(id))
	if err != nil {
		return nil, err
	}
	vectors, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return &Handle{ID: id, SampleRate: c.mfccCfg.SampleRate, Vectors: vectors, NumCoeffs: len(vectors[0])}, nil
}

func (c *Cache) loadFromSourceAudio(id string) (*Handle, error) {
	decoded, err := wavio.DecodeFile(c.audioPath(id))
	if err != nil {
		return nil, fmt.Errorf("mastercache: load source audio for %q: %w", id, err)
	}

	mono := sample.DownmixMean(decoded.Samples, decoded.Channels)
	if !sample.Finite(mono) {
		return nil, fmt.Errorf("mastercache: non-finite samples decoding %q", id)
	}

	cfg := c.mfccCfg
	cfg.SampleRate = decoded.SampleRate
	extractor, err := mfcc.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("mastercache: build extractor for %q: %w", id, err)
	}

	hop := cfg.FrameSize / 2
	vectors, err := extractor.ExtractFromBuffer(mono, hop)
	if err != nil {
		return nil, fmt.Errorf("mastercache: extract features for %q: %w", id, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("mastercache: %q produced no frames", id)
	}

	h := &Handle{ID: id, SampleRate: decoded.SampleRate, Vectors: vectors, NumCoeffs: len(vectors[0])}
	c.publish(id, h)
	c.persist(id, h)
	return h, nil
}

func (c *Cache) publish(id string, h *Handle) {
	cost := int64(len(h.Vectors) * h.NumCoeffs * 8)
	c.mem.Set(id, h, cost)
}

func (c *Cache) persist(id string, h *Handle) {
	data, err := Encode(h.Vectors)
	if err != nil {
		return
	}
	if err := os.MkdirAll(c.featuresDir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(c.featurePath(id), data, 0o600)
}

// Invalidate drops id from the in-memory tier so the next Get recomputes
// (or reloads from disk).
func (c *Cache) Invalidate(id string) { c.mem.Del(id) }

// Clear drops every published handle from memory.
func (c *Cache) Clear() { c.mem.Clear() }
