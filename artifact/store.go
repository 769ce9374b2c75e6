// Package artifact persists trained models, their metrics and a manifest as
// immutable generations on the local filesystem.
//
// Layout:
//
//	<root>/CURRENT                          id of the published generation
//	<root>/generations/<id>/<variant>_model.gob.zst
//	<root>/generations/<id>/best_model.gob.zst
//	<root>/generations/<id>/metrics_summary.json
//	<root>/generations/<id>/manifest.json
//
// Every file is written to a temporary name, fsynced and renamed. A
// generation becomes visible only when CURRENT is replaced, which is the last
// step of Publish, so readers always see a best model and a metrics summary
// from the same run.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/YuminosukeSato/ridecast/core/model"
	"github.com/YuminosukeSato/ridecast/features"
	"github.com/YuminosukeSato/ridecast/metrics"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
	"github.com/YuminosukeSato/ridecast/pkg/log"
)

// DefaultKeepGenerations is the number of generations retained after a publish.
const DefaultKeepGenerations = 3

// Store reads and writes generations under a root directory.
type Store struct {
	root   string
	keep   int
	logger log.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKeepGenerations sets how many generations survive pruning. Values
// below 1 are treated as 1.
func WithKeepGenerations(n int) StoreOption {
	return func(s *Store) { s.keep = n }
}

// WithLogger sets the store logger.
func WithLogger(l log.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the clock used for manifest timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store rooted at root. Nothing is created until Publish.
func NewStore(root string, opts ...StoreOption) *Store {
	s := &Store{
		root:   root,
		keep:   DefaultKeepGenerations,
		logger: log.GetLoggerWithName("artifact"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.keep < 1 {
		s.keep = 1
	}
	return s
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// NamedModel is a fitted model and its variant name.
type NamedModel struct {
	Variant string
	Model   model.Regressor
}

// Generation is everything one training run publishes.
type Generation struct {
	ID        string
	Models    []NamedModel // successful variants in configured order
	Best      string       // variant name of the selected model
	Summary   metrics.Summary
	TrainRows int
	TestRows  int
}

func (s *Store) generationDir(id string) string {
	return filepath.Join(s.root, GenerationsDir, id)
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return errors.NewValidationError("generation", "must be a plain directory name", id)
	}
	return nil
}

// Publish writes gen as a new generation and switches CURRENT to it. On any
// error the staged directory is removed and CURRENT keeps its old value.
func (s *Store) Publish(ctx context.Context, gen Generation) (_ *Manifest, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateID(gen.ID); err != nil {
		return nil, err
	}
	var best *NamedModel
	for i := range gen.Models {
		if gen.Models[i].Variant == gen.Best {
			best = &gen.Models[i]
		}
	}
	if best == nil {
		return nil, errors.NewValueError("artifact.Publish", fmt.Sprintf("best variant %q is not among the published models", gen.Best))
	}

	genDir := s.generationDir(gen.ID)
	if err := os.MkdirAll(filepath.Dir(genDir), 0o755); err != nil {
		return nil, errors.NewPersistenceError("write", GenerationsDir, err)
	}
	if err := os.Mkdir(genDir, 0o755); err != nil {
		return nil, errors.NewPersistenceError("write", gen.ID, err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(genDir); rmErr != nil {
				s.logger.Warn("Failed to remove staged generation", rmErr, log.GenerationKey, gen.ID)
			}
		}
	}()

	m := &Manifest{
		Generation:    gen.ID,
		CreatedAt:     s.now().UTC(),
		SchemaVersion: features.SchemaVersion,
		FeatureNames:  features.FeatureNames,
		BestVariant:   gen.Best,
		BestMetrics:   gen.Summary[gen.Best],
		TrainRows:     gen.TrainRows,
		TestRows:      gen.TestRows,
		Artifacts:     make(map[string]ArtifactInfo, len(gen.Models)+2),
	}

	var bestData []byte
	for _, nm := range gen.Models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := ModelKey(nm.Variant)
		data, err := EncodeModel(&model.Envelope{
			Variant:       nm.Variant,
			Kind:          fmt.Sprintf("%T", nm.Model),
			SchemaVersion: features.SchemaVersion,
			Model:         nm.Model,
		})
		if err != nil {
			return nil, errors.NewPersistenceError("write", key, err)
		}
		if err := s.writeArtifact(m, genDir, key, key+modelExt, data); err != nil {
			return nil, err
		}
		m.Variants = append(m.Variants, nm.Variant)
		if nm.Variant == gen.Best {
			bestData = data
		}
	}
	if err := s.writeArtifact(m, genDir, BestModelKey, BestModelKey+modelExt, bestData); err != nil {
		return nil, err
	}

	summary, err := json.MarshalIndent(gen.Summary, "", "  ")
	if err != nil {
		return nil, errors.NewPersistenceError("write", MetricsSummaryKey, err)
	}
	if err := s.writeArtifact(m, genDir, MetricsSummaryKey, MetricsSummaryKey+jsonExt, summary); err != nil {
		return nil, err
	}

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.NewPersistenceError("write", ManifestFile, err)
	}
	if err := writeFileAtomic(genDir, ManifestFile, manifest); err != nil {
		return nil, errors.NewPersistenceError("write", ManifestFile, err)
	}
	if err := syncDir(genDir); err != nil {
		return nil, errors.NewPersistenceError("write", gen.ID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(s.root, CurrentFile, []byte(gen.ID+"\n")); err != nil {
		return nil, errors.NewPersistenceError("publish", CurrentFile, err)
	}

	s.logger.Info("Generation published",
		log.GenerationKey, gen.ID,
		log.ModelNameKey, gen.Best,
		"artifacts", len(m.Artifacts),
	)

	if err := s.prune(gen.ID); err != nil {
		s.logger.Warn("Pruning old generations failed", err)
	}
	return m, nil
}

func (s *Store) writeArtifact(m *Manifest, dir, key, file string, data []byte) error {
	if err := writeFileAtomic(dir, file, data); err != nil {
		return errors.NewPersistenceError("write", key, err)
	}
	info := newArtifactInfo(file, data)
	m.Artifacts[key] = info
	s.logger.Debug("Artifact written",
		log.ArtifactKey, key,
		log.ChecksumKey, info.Checksum,
		log.SizeBytesKey, info.Size,
	)
	return nil
}

// Current returns the id of the published generation, or an error matching
// errors.ErrNoGeneration when nothing was published yet.
func (s *Store) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, CurrentFile))
	if os.IsNotExist(err) {
		return "", errors.WithStack(errors.ErrNoGeneration)
	}
	if err != nil {
		return "", errors.NewPersistenceError("read", CurrentFile, err)
	}
	id := strings.TrimSpace(string(data))
	if err := validateID(id); err != nil {
		return "", errors.NewPersistenceError("read", CurrentFile, err)
	}
	return id, nil
}

// LoadManifest reads the manifest of generation id.
func (s *Store) LoadManifest(id string) (*Manifest, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.generationDir(id), ManifestFile))
	if err != nil {
		return nil, errors.NewPersistenceError("read", ManifestFile, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewPersistenceError("read", ManifestFile, err)
	}
	return &m, nil
}

// readVerified reads an artifact and checks it against the manifest.
func (s *Store) readVerified(m *Manifest, key string) ([]byte, error) {
	info, ok := m.Artifacts[key]
	if !ok {
		return nil, errors.NewPersistenceError("read", key, os.ErrNotExist)
	}
	data, err := os.ReadFile(filepath.Join(s.generationDir(m.Generation), info.File))
	if err != nil {
		return nil, errors.NewPersistenceError("read", key, err)
	}
	if int64(len(data)) != info.Size || Checksum(data) != info.Checksum {
		return nil, errors.NewPersistenceError("read", key, errors.ErrChecksumMismatch)
	}
	return data, nil
}

// LoadModel reads and verifies one model artifact of the generation.
func (s *Store) LoadModel(m *Manifest, key string) (*model.Envelope, error) {
	data, err := s.readVerified(m, key)
	if err != nil {
		return nil, err
	}
	env, err := DecodeModel(data)
	if err != nil {
		return nil, errors.NewPersistenceError("read", key, err)
	}
	return env, nil
}

// LoadSummary reads and verifies the metrics summary of the generation.
func (s *Store) LoadSummary(m *Manifest) (metrics.Summary, error) {
	data, err := s.readVerified(m, MetricsSummaryKey)
	if err != nil {
		return nil, err
	}
	var summary metrics.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, errors.NewPersistenceError("read", MetricsSummaryKey, err)
	}
	return summary, nil
}

// Loaded is the published generation as seen by a reader.
type Loaded struct {
	Manifest *Manifest
	Best     *model.Envelope
	Summary  metrics.Summary
}

// LoadCurrent reads the best model and the metrics summary of the generation
// CURRENT points to.
func (s *Store) LoadCurrent() (*Loaded, error) {
	id, err := s.Current()
	if err != nil {
		return nil, err
	}
	m, err := s.LoadManifest(id)
	if err != nil {
		return nil, err
	}
	best, err := s.LoadModel(m, BestModelKey)
	if err != nil {
		return nil, err
	}
	summary, err := s.LoadSummary(m)
	if err != nil {
		return nil, err
	}
	return &Loaded{Manifest: m, Best: best, Summary: summary}, nil
}

// Generations lists generation ids, newest first.
func (s *Store) Generations() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, GenerationsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("read", GenerationsDir, err)
	}

	type genInfo struct {
		id      string
		created time.Time
	}
	var gens []genInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		created := time.Time{}
		if m, err := s.LoadManifest(e.Name()); err == nil {
			created = m.CreatedAt
		}
		gens = append(gens, genInfo{id: e.Name(), created: created})
	}
	sort.Slice(gens, func(i, j int) bool {
		if !gens[i].created.Equal(gens[j].created) {
			return gens[i].created.After(gens[j].created)
		}
		return gens[i].id > gens[j].id
	})

	ids := make([]string, len(gens))
	for i, g := range gens {
		ids[i] = g.id
	}
	return ids, nil
}

// prune removes the oldest generations beyond the retention limit. The
// current generation is never removed.
func (s *Store) prune(current string) error {
	ids, err := s.Generations()
	if err != nil {
		return err
	}
	kept := 1
	for _, id := range ids {
		if id == current {
			continue
		}
		if kept < s.keep {
			kept++
			continue
		}
		if err := os.RemoveAll(s.generationDir(id)); err != nil {
			return errors.NewPersistenceError("prune", id, err)
		}
		s.logger.Debug("Generation pruned", log.GenerationKey, id)
	}
	return nil
}

// writeFileAtomic writes data to dir/name through a synced temporary file.
func writeFileAtomic(dir, name string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
