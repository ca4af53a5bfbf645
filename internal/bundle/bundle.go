package bundle

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/fieldkinetics/actigraph/internal/epoch"
	"github.com/fieldkinetics/actigraph/internal/forest"
	"github.com/fieldkinetics/actigraph/internal/fsutil"
	"github.com/fieldkinetics/actigraph/internal/hmm"
)

// ErrCorruptBundle is returned when an archive is missing a member,
// carries an unknown format version, or fails digest verification.
var ErrCorruptBundle = errors.New("corrupt model bundle")

// formatVersion is bumped whenever the archive layout changes
// incompatibly. Loaders reject versions they do not know.
const formatVersion = 1

// Archive member names.
const (
	memberManifest = "manifest.json"
	memberFeatures = "features.txt"
	memberForest   = "forest.json.zst"
	memberHMM      = "hmm.json"
	memberMETs     = "mets.json"
)

// Bundle is the durable aggregate of everything inference needs:
// feature manifest, trained forest, HMM parameters, and per-label mean
// MET values. Readers treat a loaded bundle as an immutable snapshot.
type Bundle struct {
	Features []string
	Forest   *forest.Forest
	HMM      *hmm.Params
	METs     map[string]float64
}

// manifest is the self-describing header member of the archive.
type manifest struct {
	Version      int      `json:"version"`
	Labels       []string `json:"labels"`
	FeatureCount int      `json:"feature_count"`
	ForestSHA256 string   `json:"forest_sha256"`
}

// Save writes the bundle to path as a single archive. The write is
// atomic: a partially written archive is never left at path.
func (b *Bundle) Save(path string) error {
	forestJSON, err := json.Marshal(b.Forest)
	if err != nil {
		return fmt.Errorf("encode forest: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("init zstd: %w", err)
	}
	forestBlob := enc.EncodeAll(forestJSON, nil)
	enc.Close()

	sum := sha256.Sum256(forestBlob)
	man, err := json.Marshal(manifest{
		Version:      formatVersion,
		Labels:       b.Forest.Labels,
		FeatureCount: len(b.Features),
		ForestSHA256: hex.EncodeToString(sum[:]),
	})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	var features strings.Builder
	if err := epoch.WriteManifest(&features, b.Features); err != nil {
		return err
	}
	hmmJSON, err := json.Marshal(b.HMM)
	if err != nil {
		return fmt.Errorf("encode hmm params: %w", err)
	}
	metsJSON, err := json.Marshal(b.METs)
	if err != nil {
		return fmt.Errorf("encode met table: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	members := []struct {
		name string
		data []byte
	}{
		{memberManifest, man},
		{memberFeatures, []byte(features.String())},
		{memberForest, forestBlob},
		{memberHMM, hmmJSON},
		{memberMETs, metsJSON},
	}
	for _, m := range members {
		w, err := zw.Create(m.name)
		if err != nil {
			return fmt.Errorf("create archive member %s: %w", m.name, err)
		}
		if _, err := w.Write(m.data); err != nil {
			return fmt.Errorf("write archive member %s: %w", m.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	return fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// Load reads a bundle archive and reconstructs all four artifacts. Any
// missing member, version mismatch, or digest failure is
// ErrCorruptBundle; Load never substitutes defaults.
func Load(path string) (*Bundle, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrCorruptBundle, path, err)
	}
	defer zr.Close()

	read := func(name string) ([]byte, error) {
		for _, f := range zr.File {
			if f.Name != name {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: open member %s: %v", ErrCorruptBundle, name, err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, fmt.Errorf("%w: read member %s: %v", ErrCorruptBundle, name, err)
			}
			return data, nil
		}
		return nil, fmt.Errorf("%w: missing member %s", ErrCorruptBundle, name)
	}

	manData, err := read(memberManifest)
	if err != nil {
		return nil, err
	}
	var man manifest
	if err := json.Unmarshal(manData, &man); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %v", ErrCorruptBundle, err)
	}
	if man.Version != formatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrCorruptBundle, man.Version, formatVersion)
	}

	featData, err := read(memberFeatures)
	if err != nil {
		return nil, err
	}
	features, err := epoch.ReadManifest(bytes.NewReader(featData))
	if err != nil {
		return nil, fmt.Errorf("%w: decode feature manifest: %v", ErrCorruptBundle, err)
	}
	if len(features) != man.FeatureCount {
		return nil, fmt.Errorf("%w: feature manifest has %d columns, header says %d",
			ErrCorruptBundle, len(features), man.FeatureCount)
	}

	forestBlob, err := read(memberForest)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(forestBlob)
	if hex.EncodeToString(sum[:]) != man.ForestSHA256 {
		return nil, fmt.Errorf("%w: forest digest mismatch", ErrCorruptBundle)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd: %w", err)
	}
	defer dec.Close()
	forestJSON, err := dec.DecodeAll(forestBlob, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress forest: %v", ErrCorruptBundle, err)
	}
	var fst forest.Forest
	if err := json.Unmarshal(forestJSON, &fst); err != nil {
		return nil, fmt.Errorf("%w: decode forest: %v", ErrCorruptBundle, err)
	}

	hmmData, err := read(memberHMM)
	if err != nil {
		return nil, err
	}
	var params hmm.Params
	if err := json.Unmarshal(hmmData, &params); err != nil {
		return nil, fmt.Errorf("%w: decode hmm params: %v", ErrCorruptBundle, err)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBundle, err)
	}

	metsData, err := read(memberMETs)
	if err != nil {
		return nil, err
	}
	var mets map[string]float64
	if err := json.Unmarshal(metsData, &mets); err != nil {
		return nil, fmt.Errorf("%w: decode met table: %v", ErrCorruptBundle, err)
	}

	return &Bundle{
		Features: features,
		Forest:   &fst,
		HMM:      &params,
		METs:     mets,
	}, nil
}
