package bundle

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fieldkinetics/actigraph/internal/fsutil"
)

// ErrModelNotFound is returned when an identifier is neither an existing
// file path nor a registered model name.
var ErrModelNotFound = errors.New("model not found")

// Source describes one registered pre-trained model: where to fetch it
// and what to call it in the local cache.
type Source struct {
	URL  string
	File string
}

// Registry resolves short model names to local archive paths,
// downloading into CacheDir on first use. A failed download is terminal
// for that invocation; nothing is retried.
type Registry struct {
	Sources  map[string]Source
	CacheDir string
	Client   *http.Client
}

// builtinSources lists the published pre-trained models.
var builtinSources = map[string]Source{
	"walmsley": {
		URL:  "https://models.fieldkinetics.com/actigraph/walmsley-nov20.bundle",
		File: "walmsley-nov20.bundle",
	},
	"doherty": {
		URL:  "https://models.fieldkinetics.com/actigraph/doherty-may20.bundle",
		File: "doherty-may20.bundle",
	},
	"willetts": {
		URL:  "https://models.fieldkinetics.com/actigraph/willetts-may20.bundle",
		File: "willetts-may20.bundle",
	},
}

// DefaultRegistry returns the registry of published models, caching
// under the user cache directory.
func DefaultRegistry() (*Registry, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("locate cache directory: %w", err)
	}
	return &Registry{
		Sources:  builtinSources,
		CacheDir: filepath.Join(base, "actigraph", "models"),
	}, nil
}

// Resolve maps a model identifier to a local archive path. An existing
// file path wins outright; otherwise the identifier is looked up by
// name, served from cache when present, and downloaded otherwise.
func (r *Registry) Resolve(id string) (string, error) {
	if fsutil.Exists(id) {
		return id, nil
	}
	src, ok := r.Sources[id]
	if !ok {
		return "", fmt.Errorf("%w: %q is neither a file nor a registered model name", ErrModelNotFound, id)
	}

	cached := filepath.Join(r.CacheDir, src.File)
	if fsutil.Exists(cached) {
		return cached, nil
	}
	if err := r.download(src.URL, cached); err != nil {
		return "", fmt.Errorf("fetch model %q: %w", id, err)
	}
	return cached, nil
}

func (r *Registry) download(url, dest string) error {
	if err := fsutil.EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	// Atomic write: an interrupted download never leaves a half-cached
	// archive that a later Resolve would trust.
	return fsutil.WriteFileAtomic(dest, data, 0o644)
}
