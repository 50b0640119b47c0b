package incremental

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/albertocavalcante/widgetkit/internal/log"
	"github.com/albertocavalcante/widgetkit/pkg/config"
)

// HasherOptions configures a Hasher.
type HasherOptions struct {
	// Algorithm is config.HashSHA256 (default) or config.HashXXHash.
	Algorithm string
	// CacheSize bounds the per-process file digest cache. 0 disables it.
	CacheSize int
	// Ignore lists doublestar globs, matched against slash-separated paths
	// relative to the hashed tree, that never contribute to a digest.
	Ignore []string
}

// Hasher computes deterministic content digests of files and trees.
// Digests are lower-case hex strings.
type Hasher struct {
	algorithm string
	ignore    []string
	cache     *lru.Cache[cacheKey, string]
}

// cacheKey identifies a file revision without reading it.
type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

// fileDigest is one (relative path, content digest) pair of a tree.
type fileDigest struct {
	rel    string
	digest string
}

// NewHasher creates a Hasher.
func NewHasher(opts HasherOptions) (*Hasher, error) {
	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = config.HashSHA256
	}
	if algorithm != config.HashSHA256 && algorithm != config.HashXXHash {
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}

	for _, pattern := range opts.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	h := &Hasher{
		algorithm: algorithm,
		ignore:    slices.Clone(opts.Ignore),
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[cacheKey, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create digest cache: %w", err)
		}
		h.cache = cache
	}

	return h, nil
}

// NewHasherFromConfig creates a Hasher from the [hash] config section.
func NewHasherFromConfig(cfg *config.Config) (*Hasher, error) {
	return NewHasher(HasherOptions{
		Algorithm: cfg.Hash.Algorithm,
		CacheSize: cfg.HashCacheSize(),
		Ignore:    cfg.Hash.Ignore,
	})
}

// Algorithm returns the digest algorithm name.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

func (h *Hasher) newHash() hash.Hash {
	if h.algorithm == config.HashXXHash {
		return xxhash.New()
	}
	return sha256.New()
}

// HashBytes computes the digest of data.
func (h *Hasher) HashBytes(data []byte) string {
	if h.algorithm == config.HashXXHash {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], xxhash.Sum64(data))
		return hex.EncodeToString(buf[:])
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EmptyDigest is the digest of an empty sequence: the digest of a tree
// with no files, including a tree that does not exist.
func (h *Hasher) EmptyDigest() string {
	return h.HashBytes(nil)
}

// HashFile computes the digest of a file's contents.
func (h *Hasher) HashFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if h.cache != nil {
		if digest, ok := h.cache.Get(key); ok {
			return digest, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	hh := h.newHash()
	if _, err := io.Copy(hh, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	digest := hex.EncodeToString(hh.Sum(nil))

	if h.cache != nil {
		h.cache.Add(key, digest)
	}
	return digest, nil
}

// HashTree computes the digest of every file under dir:
//
//	H(join(sorted(relpath + ":" + H(file)), "\n"))
//
// Relative paths are slash-separated so digests match across operating
// systems. Unreadable files are skipped and a missing dir yields
// EmptyDigest; callers that care whether dir should exist check that
// themselves.
func (h *Hasher) HashTree(dir string) string {
	return h.combine(h.collect(dir))
}

// HashPath digests a directory with HashTree and a file with HashFile.
// ok is false when path does not exist or cannot be read.
func (h *Hasher) HashPath(path string) (digest string, ok bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		return h.HashTree(path), true
	}
	digest, err = h.HashFile(path)
	if err != nil {
		return "", false
	}
	return digest, true
}

// HashShared computes the digest over all shared inputs (directories and
// build-config files). Each input is labelled by its slash-separated path
// relative to root, so the digest is stable across checkouts in different
// locations. Missing inputs contribute nothing.
func (h *Hasher) HashShared(root string, paths []string) string {
	logger := log.Component("hasher")

	var digests []fileDigest
	for _, p := range paths {
		label := p
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			label = filepath.ToSlash(rel)
		}

		digest, ok := h.HashPath(p)
		if !ok {
			logger.Debug("shared input missing", "path", label)
			continue
		}
		digests = append(digests, fileDigest{rel: label, digest: digest})
	}

	return h.combine(digests)
}

// collect walks dir and returns the digests of all non-ignored files.
func (h *Hasher) collect(dir string) []fileDigest {
	var digests []fileDigest

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Missing root or unreadable subtree: contributes nothing.
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if h.ignored(rel) {
			return nil
		}

		digest, err := h.HashFile(path)
		if err != nil {
			log.Trace("skipping unreadable file", "path", path, "error", err)
			return nil
		}
		log.Trace("hashed file", "path", rel, "digest", digest)

		digests = append(digests, fileDigest{rel: rel, digest: digest})
		return nil
	})

	return digests
}

// combine sorts digests by relative path and hashes the joined lines.
// Sorting makes the result independent of traversal order.
func (h *Hasher) combine(digests []fileDigest) string {
	lines := make([]string, len(digests))
	for i, fd := range digests {
		lines[i] = fd.rel + ":" + fd.digest
	}
	slices.Sort(lines)
	return h.HashBytes([]byte(strings.Join(lines, "\n")))
}

func (h *Hasher) ignored(rel string) bool {
	for _, pattern := range h.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
