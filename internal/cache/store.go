package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"git.home.luguber.info/inful/contentmill/internal/document"
)

// Store persists module output sets across engine runs, keyed by the same
// module-qualified fingerprint the in-memory cache uses. A key mismatch is
// simply a miss; stores never return stale entries.
type Store interface {
	// Get returns the output set for fingerprint and whether it was found.
	Get(ctx context.Context, fingerprint string) ([]*document.Document, bool, error)

	// Put stores the output set under fingerprint, replacing any previous
	// entry.
	Put(ctx context.Context, fingerprint string, outputs []*document.Document) error

	// Close releases store resources.
	Close() error
}

// storedDocument is the serialized form of a document in a persistent store.
type storedDocument struct {
	Source      string       `json:"source,omitempty"`
	Destination string       `json:"destination,omitempty"`
	Metadata    []storedPair `json:"metadata,omitempty"`
	Content     []byte       `json:"content"`
}

type storedPair struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func encodeDocuments(docs []*document.Document) ([]byte, error) {
	stored := make([]storedDocument, 0, len(docs))
	for _, doc := range docs {
		content, err := doc.GetContentBytes()
		if err != nil {
			return nil, fmt.Errorf("read content for store: %w", err)
		}
		sd := storedDocument{
			Source:      doc.Source(),
			Destination: doc.Destination(),
			Content:     content,
		}
		for _, p := range doc.Metadata().Pairs() {
			raw, err := json.Marshal(p.Value)
			if err != nil {
				return nil, fmt.Errorf("marshal metadata %q: %w", p.Key, err)
			}
			sd.Metadata = append(sd.Metadata, storedPair{Key: p.Key, Value: raw})
		}
		stored = append(stored, sd)
	}
	return json.Marshal(stored)
}

func decodeDocuments(data []byte) ([]*document.Document, error) {
	var stored []storedDocument
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal stored documents: %w", err)
	}

	docs := make([]*document.Document, 0, len(stored))
	for _, sd := range stored {
		opts := []document.Option{
			document.WithSource(sd.Source),
			document.WithDestination(sd.Destination),
			document.WithContent(document.NewBytesProvider(sd.Content)),
		}
		for _, p := range sd.Metadata {
			v, err := decodeValue(p.Value)
			if err != nil {
				return nil, fmt.Errorf("decode metadata %q: %w", p.Key, err)
			}
			opts = append(opts, document.WithMetadata(p.Key, v))
		}
		docs = append(docs, document.New(opts...))
	}
	return docs, nil
}

// decodeValue round-trips a metadata value through JSON, restoring integral
// numbers to int so consumers see the same type the module produced.
func decodeValue(raw json.RawMessage) (any, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		if f, err := n.Float64(); err == nil {
			return f, nil
		}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
