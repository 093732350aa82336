package ingest

import (
	"path/filepath"
	"sort"
	"strings"

	"bionexus/internal/util"
	"bionexus/pkg/common"
)

// ResolveCorpus lists the default document set for a mode: every PDF under
// CORPUS_DIR for full mode, the first INGEST_SAMPLE_SIZE of them for
// sample mode. Ordering is lexicographic so a sample is reproducible.
func ResolveCorpus(mode common.IngestMode) ([]common.Document, error) {
	dir := util.GetEnvString("CORPUS_DIR", "corpus")
	paths, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return nil, common.Validation("corpus", err.Error())
	}
	if len(paths) == 0 {
		return nil, common.Validation("corpus", "no documents found in "+dir)
	}
	sort.Strings(paths)

	if mode == common.ModeSample {
		n := util.GetEnvInt("INGEST_SAMPLE_SIZE", 5)
		if n > 0 && len(paths) > n {
			paths = paths[:n]
		}
	}

	docs := make([]common.Document, 0, len(paths))
	for _, path := range paths {
		base := filepath.Base(path)
		docs = append(docs, common.Document{
			ID:   strings.TrimSuffix(base, filepath.Ext(base)),
			Path: path,
		})
	}
	return docs, nil
}
