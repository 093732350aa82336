package io

import (
	"context"
	"encoding/base64"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"bionexus/pkg/ai"
	"bionexus/pkg/common"
	"bionexus/pkg/loader"
)

// IOFileLoader loads publication files directly from the local filesystem
// with caching.
type IOFileLoader struct {
	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewIOFileLoader creates a new filesystem-based file loader.
func NewIOFileLoader() *IOFileLoader {
	return &IOFileLoader{
		cache: make(map[string][]byte),
	}
}

// GetFileBytes reads the file content from the filesystem. Results are cached.
func (l *IOFileLoader) GetFileBytes(ctx context.Context, doc common.Document) ([]byte, error) {
	key := loader.CacheKey(doc)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		result, err := os.ReadFile(doc.Path)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = result
		l.cacheMu.Unlock()

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// GetBase64 reads the file and returns it encoded as base64 with the
// appropriate MIME prefix.
func (l *IOFileLoader) GetBase64(ctx context.Context, doc common.Document) (ai.ImageData, error) {
	b, err := l.GetFileBytes(ctx, doc)
	if err != nil {
		return ai.ImageData{}, err
	}

	return ai.ImageData{
		Base64:     base64.StdEncoding.EncodeToString(b),
		MimePrefix: loader.Base64Prefix(doc.Path),
	}, nil
}
