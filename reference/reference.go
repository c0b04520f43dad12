// Package reference supplies the single original image candidates are
// compared against.
package reference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"tamperdetect/utils"
)

// ErrEmptyReferenceSet is returned when no reference image is configured.
var ErrEmptyReferenceSet = errors.New("no original image configured")

// ErrUnsupportedName is returned by Replace for a file name without an image extension.
var ErrUnsupportedName = errors.New("unsupported reference file type")

// Image is an encoded reference image.
type Image struct {
	Name    string
	Path    string
	Data    []byte
	ModTime time.Time
}

// Provider returns the current reference image.
type Provider interface {
	Reference(ctx context.Context) (*Image, error)
}

// Replacer is a Provider whose reference can be swapped.
type Replacer interface {
	Provider
	Replace(ctx context.Context, name string, data []byte) (*Image, error)
}

// DirProvider serves the first image file (by name) found in a directory.
type DirProvider struct {
	dir string
	mu  sync.RWMutex
}

// NewDirProvider creates the directory if needed.
func NewDirProvider(dir string) (*DirProvider, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create originals directory: %w", err)
	}
	return &DirProvider{dir: dir}, nil
}

// Dir returns the directory the provider reads from.
func (p *DirProvider) Dir() string {
	return p.dir
}

// Reference returns the lexicographically first image file in the directory.
func (p *DirProvider) Reference(ctx context.Context) (*Image, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := p.imageNames()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrEmptyReferenceSet
	}

	path := filepath.Join(p.dir, names[0])
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat reference %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference %s: %w", path, err)
	}

	return &Image{Name: names[0], Path: path, Data: data, ModTime: info.ModTime()}, nil
}

// Replace removes every image in the directory and stores data as the new
// reference. The file is written to a temporary name first and renamed, so
// readers never see a partial image.
func (p *DirProvider) Replace(ctx context.Context, name string, data []byte) (*Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name = utils.SanitizeFilename(name, "original.png")
	if !utils.IsImageFile(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedName, name)
	}

	tmp, err := os.CreateTemp(p.dir, ".reference-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write reference: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write reference: %w", err)
	}

	path := filepath.Join(p.dir, name)
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("failed to store reference: %w", err)
	}

	others, err := p.imageNames()
	if err != nil {
		return nil, err
	}
	for _, n := range others {
		if n == name {
			continue
		}
		if err := os.Remove(filepath.Join(p.dir, n)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove old reference %s: %w", n, err)
		}
	}

	return &Image{Name: name, Path: path, Data: data, ModTime: time.Now()}, nil
}

// imageNames lists image files in the directory, sorted by name
func (p *DirProvider) imageNames() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list originals: %w", err)
	}

	files := lo.Filter(entries, func(e os.DirEntry, _ int) bool {
		return e.Type().IsRegular() && utils.IsImageFile(e.Name())
	})
	names := lo.Map(files, func(e os.DirEntry, _ int) string {
		return e.Name()
	})
	sort.Strings(names)
	return names, nil
}

// MemoryProvider holds the reference in memory.
type MemoryProvider struct {
	mu  sync.RWMutex
	img *Image
}

// NewMemoryProvider returns a provider seeded with data; nil data leaves it empty.
func NewMemoryProvider(name string, data []byte) *MemoryProvider {
	p := &MemoryProvider{}
	if data != nil {
		p.img = &Image{Name: name, Data: data, ModTime: time.Now()}
	}
	return p
}

// Reference returns the stored image or ErrEmptyReferenceSet.
func (p *MemoryProvider) Reference(ctx context.Context) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.img == nil {
		return nil, ErrEmptyReferenceSet
	}
	img := *p.img
	return &img, nil
}

// Replace swaps the stored image.
func (p *MemoryProvider) Replace(ctx context.Context, name string, data []byte) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.img = &Image{Name: name, Data: data, ModTime: time.Now()}
	img := *p.img
	return &img, nil
}
