package config

import (
	"context"
	"fmt"

	"github.com/vk/modplan/internal/ctxlog"
	"github.com/vk/modplan/internal/descriptor"
	"github.com/vk/modplan/internal/fsutil"
)

// FileLoader is the interface for a format-specific descriptor reader.
type FileLoader interface {
	// Name identifies the format in logs.
	Name() string
	// Match reports whether the loader understands the file at path.
	Match(path string) bool
	// LoadFile parses one file and adds every descriptor it declares to store.
	LoadFile(ctx context.Context, path string, store *descriptor.Store) error
}

// Load discovers descriptor files under paths and populates a new store.
// Each file is read by the first loader whose Match accepts it.
func Load(ctx context.Context, paths []string, loaders ...FileLoader) (*descriptor.Store, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Descriptor loading started.", "path_count", len(paths), "loader_count", len(loaders))

	if len(paths) == 0 {
		return nil, fmt.Errorf("no descriptor paths configured")
	}

	files, err := fsutil.FindFiles(paths, func(p string) bool {
		return pick(loaders, p) != nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no descriptor files found under %v", paths)
	}
	logger.Debug("Discovered descriptor files.", "count", len(files))

	store := descriptor.NewStore()
	for _, file := range files {
		loader := pick(loaders, file)
		logger.Debug("Loading descriptor file.", "file", file, "format", loader.Name())
		if err := loader.LoadFile(ctx, file, store); err != nil {
			return nil, err
		}
	}

	targets, modules, externals := store.Counts()
	logger.Debug("Descriptor loading complete.", "targets", targets, "modules", modules, "externals", externals)
	return store, nil
}

func pick(loaders []FileLoader, path string) FileLoader {
	for _, l := range loaders {
		if l.Match(path) {
			return l
		}
	}
	return nil
}
