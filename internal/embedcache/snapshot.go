package embedcache

// indexSnapshot is the immutable, lock-free-readable view of the cache
// index. A new snapshot replaces the old one on each Set/Invalidate;
// readers holding a reference see either the old or new view, never a
// torn one.
type indexSnapshot struct {
	byHash map[string]Entry
}

func newSnapshot(meta *metadataFile) *indexSnapshot {
	byHash := make(map[string]Entry, len(meta.Embeddings))
	for hash, entry := range meta.Embeddings {
		byHash[hash] = entry
	}
	return &indexSnapshot{byHash: byHash}
}

// toMetadataFile materializes a mutable metadataFile from the snapshot
// for the writer to mutate under writeMu. Only ever called with writeMu
// held. shadowed is attached as-is (the writer never mutates another
// model's entries, only the active model's Embeddings), so every write
// carries forward whatever model history Open found.
func (s *indexSnapshot) toMetadataFile(modelName string, shadowed map[string]map[string]Entry) *metadataFile {
	embeddings := make(map[string]Entry, len(s.byHash))
	for hash, entry := range s.byHash {
		embeddings[hash] = entry
	}
	return &metadataFile{Version: metadataVersion, ModelName: modelName, Embeddings: embeddings, Shadowed: shadowed}
}
