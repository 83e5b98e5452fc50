package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vk/modplan/internal/ctxlog"
	"github.com/vk/modplan/internal/descriptor"
	"github.com/vk/modplan/internal/graph"
)

// DefaultSourceCacheSize bounds the number of memoized source-set hashes.
const DefaultSourceCacheSize = 1024

// Fingerprinter computes node fingerprints. Source-set hashes are memoized
// per root for the lifetime of the Fingerprinter, so a Fingerprinter must not
// outlive one build pass: edits made after a root was hashed are not seen.
// Within a pass the memo only saves work for modules sharing a sources root.
type Fingerprinter struct {
	sources *lru.Cache[string, string]
}

// NewFingerprinter creates a Fingerprinter memoizing up to size source roots.
func NewFingerprinter(size int) (*Fingerprinter, error) {
	if size <= 0 {
		size = DefaultSourceCacheSize
	}
	sources, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating source hash cache: %w", err)
	}
	return &Fingerprinter{sources: sources}, nil
}

// Annotate fingerprints every node of g, dependencies first.
func (f *Fingerprinter) Annotate(ctx context.Context, g *graph.Graph) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Annotate: Fingerprinting graph.", "nodes", g.Len())
	for _, n := range g.DependencyOrder() {
		fp, err := f.Fingerprint(n)
		if err != nil {
			return err
		}
		n.SetFingerprint(fp)
		logger.Debug("Fingerprinted module.", "module", n.Name(), "fingerprint", fp[:12])
	}
	return nil
}

// Fingerprint computes the fingerprint of n. Every dependency of n must
// already carry its fingerprint.
func (f *Fingerprinter) Fingerprint(n *graph.Node) (string, error) {
	h := sha256.New()

	if n.IsExternal() {
		writeField(h, "external")
		writeField(h, n.Name())
		writeField(h, n.External().ArtifactRef())
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	mod := n.Module()
	writeField(h, "module")
	writeField(h, mod.Name())
	writeField(h, mod.PCHPolicy().String())
	writeList(h, mod.PublicDependencies())
	writeList(h, mod.PrivateDependencies())
	writeField(h, n.PCH().String())

	sources, err := f.SourcesHash(mod.SourcesRoot())
	if err != nil {
		return "", fmt.Errorf("fingerprinting module %q: %w", n.Name(), err)
	}
	writeField(h, sources)

	deps := make([]string, 0, len(n.Deps()))
	for _, d := range n.Deps() {
		if d.Fingerprint() == "" {
			return "", fmt.Errorf("fingerprinting module %q: dependency %q has no fingerprint", n.Name(), d.Name())
		}
		deps = append(deps, d.Fingerprint())
	}
	sort.Strings(deps)
	writeList(h, deps)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// SourcesHash hashes every regular file under root by relative path and
// content. An empty root hashes to a fixed value; a missing root hashes its
// absence so that creating it later changes the fingerprint.
func (f *Fingerprinter) SourcesHash(root string) (string, error) {
	if root == "" {
		return "no-sources", nil
	}
	if cached, ok := f.sources.Get(root); ok {
		return cached, nil
	}

	sum, err := hashTree(root)
	if err != nil {
		return "", err
	}
	f.sources.Add(root, sum)
	return sum, nil
}

// sourceEntry is one hashed item of a source tree. Symlinks to regular files
// are hashed by content; any other symlink is hashed by its target path.
type sourceEntry struct {
	path string
	link string
}

func hashTree(root string) (string, error) {
	h := sha256.New()
	dir := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		dir = resolved
	}
	var entries []sourceEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case d.Type().IsRegular():
			entries = append(entries, sourceEntry{path: path})
		case d.Type()&fs.ModeSymlink != 0:
			if info, statErr := os.Stat(path); statErr == nil && info.Mode().IsRegular() {
				entries = append(entries, sourceEntry{path: path})
				return nil
			}
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			entries = append(entries, sourceEntry{path: path, link: target})
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		writeField(h, "missing")
		writeField(h, root)
		return hex.EncodeToString(h.Sum(nil)), nil
	}
	if err != nil {
		return "", fmt.Errorf("walking sources %s: %w", root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	for _, e := range entries {
		rel, err := filepath.Rel(dir, e.path)
		if err != nil {
			return "", err
		}
		writeField(h, filepath.ToSlash(rel))
		if e.link != "" {
			writeField(h, "symlink")
			writeField(h, e.link)
			continue
		}
		writeField(h, "file")
		if err := writeFile(h, e.path); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeField writes a length-prefixed string so adjacent fields cannot alias.
func writeField(h hash.Hash, s string) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(s)))
	h.Write(prefix[:])
	io.WriteString(h, s)
}

func writeList(h hash.Hash, items []string) {
	writeField(h, fmt.Sprint(len(items)))
	for _, s := range items {
		writeField(h, s)
	}
}

func writeFile(h hash.Hash, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading source %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("reading source %s: %w", path, err)
	}
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(info.Size()))
	h.Write(prefix[:])
	if _, err := io.Copy(h, file); err != nil {
		return fmt.Errorf("reading source %s: %w", path, err)
	}
	return nil
}

// TargetKey is the store key under which a target's link result is recorded.
// Module names cannot contain descriptor.ReservedNameRune, so it never
// collides with a module record.
func TargetKey(target string) string {
	return string(descriptor.ReservedNameRune) + "target/" + target
}

// ForToolchain binds a node fingerprint to the toolchain that builds it, so
// that a record produced by one toolchain never satisfies another.
func ForToolchain(fingerprint, toolchain string) string {
	h := sha256.New()
	writeField(h, "build")
	writeField(h, fingerprint)
	writeField(h, toolchain)
	return hex.EncodeToString(h.Sum(nil))
}

// TargetFingerprint combines a target's identity and toolchain with the
// fingerprints of every node it links. The result changes whenever any
// linked module does.
func TargetFingerprint(target, kind, toolchain string, nodes []*graph.Node) string {
	fps := make([]string, 0, len(nodes))
	for _, n := range nodes {
		fps = append(fps, n.Name()+"="+n.Fingerprint())
	}
	sort.Strings(fps)

	h := sha256.New()
	writeField(h, "target")
	writeField(h, target)
	writeField(h, kind)
	writeField(h, toolchain)
	writeList(h, fps)
	return hex.EncodeToString(h.Sum(nil))
}
