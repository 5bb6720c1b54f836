// Package docsource lists data room documents with their extracted text.
package docsource

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/config"
	"github.com/sells-group/diligence-cli/internal/model"
)

// Directory walks a data room directory. Paths are matched relative to Root
// with forward slashes.
type Directory struct {
	Root         string
	Include      []string
	Exclude      []string
	MaxFileBytes int64
}

// NewDirectory builds a Directory from config.
func NewDirectory(cfg config.DocumentsConfig) *Directory {
	include := cfg.Include
	if len(include) == 0 {
		include = []string{"**/*"}
	}
	return &Directory{
		Root:         cfg.Root,
		Include:      include,
		Exclude:      cfg.Exclude,
		MaxFileBytes: cfg.MaxFileBytes,
	}
}

// ListFiles reads every included file under Root. Files that are too large,
// binary, or unreadable are logged and skipped so one bad file never hides
// the rest of the data room.
func (d *Directory) ListFiles(ctx context.Context) ([]model.Document, error) {
	if d.Root == "" {
		return nil, eris.New("docsource: no root directory configured")
	}
	root, err := filepath.Abs(d.Root)
	if err != nil {
		return nil, eris.Wrap(err, "docsource: resolve root")
	}

	var docs []model.Document
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if matchAny(d.Exclude, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || !matchAny(d.Include, rel) || matchAny(d.Exclude, rel) {
			return nil
		}

		doc, err := d.read(path, rel)
		if err != nil {
			zap.L().Warn("docsource: skipping file", zap.String("file", rel), zap.Error(err))
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "docsource: walk %s", d.Root)
	}

	zap.L().Debug("docsource: listed documents", zap.String("root", d.Root), zap.Int("count", len(docs)))
	return docs, nil
}

func (d *Directory) read(path, rel string) (model.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Document{}, eris.Wrap(err, "stat")
	}
	if d.MaxFileBytes > 0 && info.Size() > d.MaxFileBytes {
		return model.Document{}, eris.Errorf("file is %d bytes, limit is %d", info.Size(), d.MaxFileBytes)
	}

	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		text, err = RenderWorkbook(path)
		if err != nil {
			return model.Document{}, err
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return model.Document{}, eris.Wrap(err, "read")
		}
		if bytes.IndexByte(data, 0) >= 0 {
			return model.Document{}, eris.New("binary content")
		}
		text = strings.ToValidUTF8(string(data), "�")
	}

	return model.Document{
		ID:          rel,
		Name:        filepath.Base(path),
		TextContent: text,
		SizeBytes:   info.Size(),
	}, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Static serves a fixed document list.
type Static []model.Document

// ListFiles returns a copy of the documents.
func (s Static) ListFiles(_ context.Context) ([]model.Document, error) {
	return slices.Clone([]model.Document(s)), nil
}
