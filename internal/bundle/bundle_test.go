package bundle

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldkinetics/actigraph/internal/forest"
	"github.com/fieldkinetics/actigraph/internal/hmm"
)

// trainTestBundle fits a small real forest so round-trip tests exercise
// the actual serialization path, not a hand-built stub.
func trainTestBundle(t *testing.T) (*Bundle, [][]float64) {
	t.Helper()

	rng := rand.New(rand.NewSource(4))
	var x [][]float64
	var y []string
	labels := []string{"sedentary", "sleep", "walking"}
	for i := 0; i < 120; i++ {
		label := labels[i%3]
		base := float64(i % 3)
		x = append(x, []float64{base + rng.Float64()*0.1, base*2 + rng.Float64()*0.1})
		y = append(y, label)
	}

	f, _, err := forest.Train(x, y, nil, forest.Config{Trees: 9, Seed: 21}, nil)
	require.NoError(t, err)

	return &Bundle{
		Features: []string{"enmoTrunc", "xStd"},
		Forest:   f,
		HMM: &hmm.Params{
			Labels:      f.Labels,
			Priors:      []float64{0.3, 0.5, 0.2},
			Transitions: [][]float64{{0.8, 0.1, 0.1}, {0.1, 0.8, 0.1}, {0.2, 0.2, 0.6}},
			Emissions:   [][]float64{{0.7, 0.2, 0.1}, {0.1, 0.8, 0.1}, {0.1, 0.2, 0.7}},
		},
		METs: map[string]float64{"sedentary": 1.3, "sleep": 0.95, "walking": 3.0},
	}, x
}

func TestBundleRoundTrip(t *testing.T) {
	t.Parallel()

	b, x := trainTestBundle(t)
	path := filepath.Join(t.TempDir(), "model.bundle")
	require.NoError(t, b.Save(path))

	got, err := Load(path)
	require.NoError(t, err)

	if diff := cmp.Diff(b.Features, got.Features); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(b.Forest, got.Forest); diff != "" {
		t.Errorf("forest mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(b.HMM, got.HMM); diff != "" {
		t.Errorf("hmm params mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(b.METs, got.METs); diff != "" {
		t.Errorf("met table mismatch (-want +got):\n%s", diff)
	}

	// Reloaded model reproduces the pre-save point predictions exactly.
	for i := range x {
		assert.Equal(t, b.Forest.PredictClass(x[i]), got.Forest.PredictClass(x[i]), "row %d", i)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	t.Parallel()

	b, _ := trainTestBundle(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "model.bundle")
	require.NoError(t, b.Save(path))
	require.NoError(t, b.Save(path)) // overwrite in place

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files may remain after save")
}

func TestLoadRejectsTruncatedArchive(t *testing.T) {
	t.Parallel()

	b, _ := trainTestBundle(t)
	path := filepath.Join(t.TempDir(), "model.bundle")
	require.NoError(t, b.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptBundle))
}

func TestLoadRejectsMissingMember(t *testing.T) {
	t.Parallel()

	b, _ := trainTestBundle(t)
	path := filepath.Join(t.TempDir(), "model.bundle")
	require.NoError(t, b.Save(path))

	// Rewrite the archive without the HMM member.
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		if f.Name == memberHMM {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		w, err := zw.Create(f.Name)
		require.NoError(t, err)
		_, err = io.Copy(w, rc)
		require.NoError(t, err)
		rc.Close()
	}
	require.NoError(t, zr.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptBundle))
	assert.Contains(t, err.Error(), memberHMM)
}

func TestLoadRejectsTamperedForest(t *testing.T) {
	t.Parallel()

	b, _ := trainTestBundle(t)
	path := filepath.Join(t.TempDir(), "model.bundle")
	require.NoError(t, b.Save(path))

	// Flip the forest member's bytes while keeping the manifest digest.
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		w, err := zw.Create(f.Name)
		require.NoError(t, err)
		if f.Name == memberForest {
			_, err = w.Write([]byte("not the forest you saved"))
			require.NoError(t, err)
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		_, err = io.Copy(w, rc)
		require.NoError(t, err)
		rc.Close()
	}
	require.NoError(t, zr.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptBundle))
	assert.Contains(t, err.Error(), "digest")
}

// failTransport fails the test if any request goes out.
type failTransport struct{ t *testing.T }

func (ft failTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ft.t.Errorf("unexpected network request to %s", req.URL)
	return nil, errors.New("network disabled in test")
}

func TestResolveExistingPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "local.bundle")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	r := &Registry{Client: &http.Client{Transport: failTransport{t}}}
	got, err := r.Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestResolveUnknownNameNoNetwork(t *testing.T) {
	t.Parallel()

	r := &Registry{
		Sources:  map[string]Source{"walmsley": {URL: "https://example.invalid/m", File: "m.bundle"}},
		CacheDir: t.TempDir(),
		Client:   &http.Client{Transport: failTransport{t}},
	}
	_, err := r.Resolve("no-such-model")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelNotFound))
}

func TestResolveCacheHit(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cache, "m.bundle"), []byte("cached"), 0o644))

	r := &Registry{
		Sources:  map[string]Source{"walmsley": {URL: "https://example.invalid/m", File: "m.bundle"}},
		CacheDir: cache,
		Client:   &http.Client{Transport: failTransport{t}},
	}
	got, err := r.Resolve("walmsley")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, "m.bundle"), got)
}

func TestResolveDownloads(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("model bytes"))
	}))
	defer srv.Close()

	cache := filepath.Join(t.TempDir(), "models")
	r := &Registry{
		Sources:  map[string]Source{"walmsley": {URL: srv.URL, File: "m.bundle"}},
		CacheDir: cache,
		Client:   srv.Client(),
	}
	got, err := r.Resolve("walmsley")
	require.NoError(t, err)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "model bytes", string(data))

	// Second resolve serves from cache; the failing transport proves it.
	r.Client = &http.Client{Transport: failTransport{t}}
	again, err := r.Resolve("walmsley")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestResolveDownloadErrorIsTerminal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	cache := t.TempDir()
	r := &Registry{
		Sources:  map[string]Source{"walmsley": {URL: srv.URL, File: "m.bundle"}},
		CacheDir: cache,
		Client:   srv.Client(),
	}
	_, err := r.Resolve("walmsley")
	require.Error(t, err)

	// Nothing half-written into the cache.
	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
