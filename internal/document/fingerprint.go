package document

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"hash/fnv"
	"io"
)

// GetCacheFingerprint computes the document's cache key: a CRC32 checksum of
// the content bytes combined with an order-independent hash of all metadata
// key/value pairs. Repeated calls on unchanged input are deterministic.
func (d *Document) GetCacheFingerprint() (string, error) {
	r, err := d.provider.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()

	crc := crc32.NewIEEE()
	if _, err := io.Copy(crc, r); err != nil {
		return "", err
	}

	// Per-pair hashes are XOR-folded so metadata order does not matter,
	// while any single key or value change perturbs the result.
	var metaHash uint64
	for _, e := range d.metadata.entries {
		h := fnv.New64a()
		_, _ = h.Write([]byte(e.key))
		_, _ = h.Write([]byte{0})
		_, _ = fmt.Fprintf(h, "%v", e.value)
		metaHash ^= h.Sum64()
	}

	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], crc.Sum32())
	binary.BigEndian.PutUint64(buf[4:12], metaHash)
	return fmt.Sprintf("%x", buf), nil
}
