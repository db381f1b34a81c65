package vectorindex

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"ingres/internal/domain"
)

// On-disk layout: magic, format version, crc32 of payload, payload length, gob payload.
var fileMagic = [4]byte{'G', 'W', 'I', 'X'}

const fileVersion uint32 = 1

type persisted struct {
	Embedder  string
	Dimension int
	Vectors   [][]float64
	Documents []domain.IndexedDocument
}

func writeFile(path, embedderName string, snap *snapshot) error {
	p := persisted{Embedder: embedderName}
	if snap != nil {
		p.Dimension = snap.dimension
		p.Vectors = snap.vectors
		p.Documents = snap.docs
	}
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(p); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(fileMagic[:])
	_ = binary.Write(&buf, binary.LittleEndian, fileVersion)
	_ = binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(payload.Bytes()))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(payload.Len()))
	buf.Write(payload.Bytes())

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func readFile(path, embedderName string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	const headerLen = 4 + 4 + 4 + 8
	if len(data) < headerLen {
		return nil, errors.New("truncated header")
	}
	if !bytes.Equal(data[:4], fileMagic[:]) {
		return nil, errors.New("bad magic")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != fileVersion {
		return nil, fmt.Errorf("unsupported format version %d", v)
	}
	sum := binary.LittleEndian.Uint32(data[8:12])
	n := binary.LittleEndian.Uint64(data[12:20])
	payload := data[headerLen:]
	if uint64(len(payload)) != n {
		return nil, fmt.Errorf("payload is %d bytes, header says %d", len(payload), n)
	}
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, errors.New("checksum mismatch")
	}

	var p persisted
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if p.Embedder != embedderName {
		return nil, fmt.Errorf("built with embedder %q, have %q", p.Embedder, embedderName)
	}
	if len(p.Vectors) != len(p.Documents) {
		return nil, fmt.Errorf("%d vectors for %d documents", len(p.Vectors), len(p.Documents))
	}
	for i, v := range p.Vectors {
		if len(v) != p.Dimension {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), p.Dimension)
		}
	}
	if len(p.Documents) == 0 {
		return nil, nil
	}
	return &snapshot{dimension: p.Dimension, vectors: p.Vectors, docs: p.Documents}, nil
}
