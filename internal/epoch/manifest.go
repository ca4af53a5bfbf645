package epoch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadManifest parses a newline-delimited feature-column manifest.
// Blank lines are skipped; order is significant and defines the feature
// vector layout presented to the ensemble.
func ReadManifest(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}
	return names, nil
}

// ReadManifestFile reads a manifest from the named file.
func ReadManifestFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return ReadManifest(f)
}

// WriteManifest writes the manifest as one feature name per line.
func WriteManifest(w io.Writer, names []string) error {
	for _, name := range names {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}
	return nil
}
