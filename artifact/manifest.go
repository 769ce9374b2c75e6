package artifact

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/YuminosukeSato/ridecast/metrics"
)

// Artifact keys and file names.
const (
	BestModelKey      = "best_model"
	MetricsSummaryKey = "metrics_summary"
	ManifestFile      = "manifest.json"
	CurrentFile       = "CURRENT"
	GenerationsDir    = "generations"

	modelExt = ".gob.zst"
	jsonExt  = ".json"
)

// ModelKey returns the artifact key of a variant, e.g. "randomforest_model".
func ModelKey(variant string) string {
	return strings.ToLower(variant) + "_model"
}

// ArtifactInfo locates and fingerprints one file of a generation.
type ArtifactInfo struct {
	File     string `json:"file"`
	Checksum string `json:"xxhash64"`
	Size     int64  `json:"size"`
}

// Manifest describes a published generation. It is written last inside the
// generation directory.
type Manifest struct {
	Generation    string                  `json:"generation"`
	CreatedAt     time.Time               `json:"created_at"`
	SchemaVersion int                     `json:"schema_version"`
	FeatureNames  []string                `json:"feature_names"`
	Variants      []string                `json:"variants"`
	BestVariant   string                  `json:"best_variant"`
	BestMetrics   metrics.MetricSet       `json:"best_metrics"`
	TrainRows     int                     `json:"train_rows"`
	TestRows      int                     `json:"test_rows"`
	Artifacts     map[string]ArtifactInfo `json:"artifacts"`
}

// Checksum returns the hex xxhash64 digest of data.
func Checksum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

func newArtifactInfo(file string, data []byte) ArtifactInfo {
	return ArtifactInfo{File: file, Checksum: Checksum(data), Size: int64(len(data))}
}
