package catalog

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fredp03/watchtogether/backend/model"
	"github.com/rs/zerolog"
)

var (
	ErrRootUnreadable = errors.New("media root is not readable")
	ErrAssetNotFound  = errors.New("asset not found")
)

// videoExtensions is the container allow-list. Keys include the dot to match
// filepath.Ext output.
var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".webm": {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
	".m4v":  {},
}

const captionExtension = ".vtt"

// Catalog scans a media root for playable files and resolves asset IDs back
// to paths for the streamer. The asset list is rebuilt wholesale on each
// scan and swapped atomically under the mutex.
type Catalog struct {
	logger zerolog.Logger
	root   string
	mx     sync.RWMutex
	assets []model.VideoAsset
}

type Config struct {
	Logger *zerolog.Logger
	Root   string
}

// New verifies the root is readable and returns a catalog with an initial
// scan already performed. An unreadable root is a startup-fatal condition.
func New(cfg Config) (*Catalog, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.Join(ErrRootUnreadable, err)
	}
	if _, err = os.ReadDir(root); err != nil {
		return nil, errors.Join(ErrRootUnreadable, err)
	}
	c := &Catalog{
		logger: cfg.Logger.With().Str("component", "catalog").Logger(),
		root:   root,
	}
	c.Scan()
	return c, nil
}

// Scan walks the root and rebuilds the asset list in traversal order.
// Entries that cannot be read are skipped with a warning.
func (c *Catalog) Scan() []model.VideoAsset {
	var assets []model.VideoAsset
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := videoExtensions[ext]; !ok {
			return nil
		}
		rel, relErr := filepath.Rel(c.root, path)
		if relErr != nil {
			c.logger.Warn().Err(relErr).Str("path", path).Msg("skipping entry outside root")
			return nil
		}
		assets = append(assets, c.buildAsset(rel, path, ext))
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("scan terminated early")
	}

	c.mx.Lock()
	c.assets = assets
	c.mx.Unlock()

	c.logger.Info().Int("count", len(assets)).Msg("media scan complete")
	return assets
}

func (c *Catalog) buildAsset(rel, abs, ext string) model.VideoAsset {
	id := EncodeID(rel)
	asset := model.VideoAsset{
		ID:           id,
		Name:         displayName(rel),
		RelativePath: filepath.ToSlash(rel),
		StreamURL:    "/media/" + id,
	}
	stem := strings.TrimSuffix(abs, ext)
	if _, err := os.Stat(stem + captionExtension); err == nil {
		asset.CaptionsURL = "/media/captions/" + id
	}
	return asset
}

// Assets returns the current snapshot.
func (c *Catalog) Assets() []model.VideoAsset {
	c.mx.RLock()
	defer c.mx.RUnlock()
	out := make([]model.VideoAsset, len(c.assets))
	copy(out, c.assets)
	return out
}

// ResolvePath decodes an asset ID and returns the absolute path, guaranteed
// to lie inside the media root. Anything that decodes outside the root is
// reported as not found, never as a distinct error that would leak layout.
func (c *Catalog) ResolvePath(id string) (string, error) {
	rel, err := DecodeID(id)
	if err != nil {
		return "", ErrAssetNotFound
	}
	abs := filepath.Join(c.root, filepath.FromSlash(rel))
	abs = filepath.Clean(abs)
	if abs != c.root && !strings.HasPrefix(abs, c.root+string(os.PathSeparator)) {
		return "", ErrAssetNotFound
	}
	if _, err = os.Stat(abs); err != nil {
		return "", ErrAssetNotFound
	}
	return abs, nil
}

// ResolveCaptionsPath resolves the sibling .vtt for an asset ID.
func (c *Catalog) ResolveCaptionsPath(id string) (string, error) {
	abs, err := c.ResolvePath(id)
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(abs, filepath.Ext(abs))
	captions := stem + captionExtension
	if _, err = os.Stat(captions); err != nil {
		return "", ErrAssetNotFound
	}
	return captions, nil
}

// EncodeID maps a relative path to its opaque URL-safe asset ID.
func EncodeID(rel string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(filepath.ToSlash(rel)))
}

// DecodeID is the inverse of EncodeID. Absolute paths and parent references
// are rejected here so callers only ever see in-root relative paths.
func DecodeID(id string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("undecodable asset id: %w", err)
	}
	rel := string(b)
	if rel == "" || strings.HasPrefix(rel, "/") || strings.Contains(rel, "..") {
		return "", errors.New("asset id escapes media root")
	}
	return rel, nil
}

func displayName(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
