// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/notetagger/internal/httputil"
	"github.com/pdiddy/notetagger/pkg/types"
)

// Resolve fetches and unpacks the configured ruleset if necessary and
// returns the local directory holding the bundle files.
func Resolve(ctx context.Context, cfg types.EngineConfig) (string, error) {
	return resolveRuleset(ctx, cfg)
}

// resolveRuleset turns a ruleset location into a local directory
// holding the bundle files. Directories are used in place; .zip
// archives are unpacked once into the cache; http(s) locations are
// downloaded first. Unpacking is idempotent: a bundle another worker
// already unpacked is reused, never an error.
func resolveRuleset(ctx context.Context, cfg types.EngineConfig) (string, error) {
	loc := cfg.Ruleset

	switch {
	case strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://"):
		archive, err := fetchArchive(ctx, cfg)
		if err != nil {
			return "", err
		}
		return unpackOnce(archive, cacheRoot(cfg))

	case strings.HasSuffix(loc, ".zip"):
		return unpackOnce(loc, cacheRoot(cfg))

	default:
		info, err := os.Stat(loc)
		if err != nil {
			return "", fmt.Errorf("ruleset location %s: %w", loc, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("ruleset location %s is neither a directory nor a .zip archive", loc)
		}
		return loc, nil
	}
}

// cacheRoot returns the directory archives are downloaded and unpacked
// into.
func cacheRoot(cfg types.EngineConfig) string {
	if cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	return filepath.Join(os.TempDir(), "notetagger-rulesets")
}

// fetchArchive downloads a remote ruleset archive into the cache,
// keyed by the URL. An archive a sibling worker already downloaded is
// reused.
func fetchArchive(ctx context.Context, cfg types.EngineConfig) (string, error) {
	root := cacheRoot(cfg)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	dest := filepath.Join(root, "dl-"+shortHash([]byte(cfg.Ruleset))+".zip")
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Ruleset, nil)
	if err != nil {
		return "", fmt.Errorf("creating ruleset request: %w", err)
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	if cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}

	client := &http.Client{Timeout: cfg.Timeout}
	resp, err := httputil.DoWithRetry(ctx, client, req, cfg.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("fetching ruleset %s: %w", cfg.Ruleset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching ruleset %s: HTTP %d", cfg.Ruleset, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(root, ".fetch-*.zip")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("downloading ruleset: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		// A sibling worker may have won the race; their copy is as good.
		if _, statErr := os.Stat(dest); statErr == nil {
			os.Remove(tmpPath)
			return dest, nil
		}
		os.Remove(tmpPath)
		return "", fmt.Errorf("placing ruleset archive: %w", err)
	}
	return dest, nil
}

// unpackOnce extracts a zip archive into a content-addressed cache
// directory. If the directory already exists the archive was unpacked
// by an earlier call or a sibling worker, and that copy is returned.
func unpackOnce(archivePath, root string) (string, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return "", fmt.Errorf("reading ruleset archive %s: %w", archivePath, err)
	}

	dest := filepath.Join(root, shortHash(data))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.MkdirTemp(root, ".unpack-*")
	if err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}

	if err := unzip(archivePath, tmp); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("unpacking ruleset archive %s: %w", archivePath, err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		// Concurrent unpack of the same archive; keep the winner.
		if _, statErr := os.Stat(dest); statErr == nil {
			os.RemoveAll(tmp)
			return dest, nil
		}
		os.RemoveAll(tmp)
		return "", fmt.Errorf("placing unpacked ruleset: %w", err)
	}
	return dest, nil
}

// unzip extracts every file in the archive under destDir, rejecting
// entries that would escape it.
func unzip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := filepath.FromSlash(f.Name)
		if filepath.IsAbs(name) || strings.Contains(name, "..") {
			return fmt.Errorf("archive entry %q escapes the bundle directory", f.Name)
		}
		target := filepath.Join(destDir, name)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return copyErr
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}

// shortHash returns the first 16 hex characters of SHA-256(data).
func shortHash(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))[:16]
}
