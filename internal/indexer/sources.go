package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

// CollectFiles expands paths into regular files, in walk order.
// Directories are walked (recursively unless recursive is false) and filtered by
// extension; an empty extension list means every extension the extractor supports.
// Files named directly are always included.
func CollectFiles(paths, extensions []string, recursive bool) ([]string, error) {
	if len(extensions) == 0 {
		extensions = extract.SupportedExtensions()
	}
	var files []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat source: %w", err)
		}
		if !info.IsDir() {
			if info.Mode().IsRegular() {
				add(abs)
			}
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != abs && (!recursive || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if !extensionAllowed(filepath.Ext(path), extensions) {
				return nil
			}
			// follow symlinks, index only regular files
			finfo, statErr := os.Stat(path)
			if statErr != nil || !finfo.Mode().IsRegular() {
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", abs, err)
		}
	}
	return files, nil
}

// LoadSources reads every file found by CollectFiles for the configured sources.
func LoadSources(cfg *config.SourcesConfig) ([]models.DocumentInput, error) {
	if len(cfg.Paths) == 0 {
		return nil, models.InvalidConfigf("no source paths configured")
	}
	files, err := CollectFiles(cfg.Paths, cfg.Extensions, cfg.RecursiveOrDefault())
	if err != nil {
		return nil, err
	}
	docs := make([]models.DocumentInput, 0, len(files))
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, models.NewSourceError(fileid.SourceID(f), filepath.Base(f), err)
		}
		docs = append(docs, models.DocumentInput{
			ID:       fileid.SourceID(f),
			Filename: filepath.Base(f),
			Content:  content,
		})
	}
	return docs, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
