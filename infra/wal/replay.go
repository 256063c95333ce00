package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

const headerSize = 21 // [type:1][seq:8][time:8][len:4]

type ReplayHandler func(*Record) error

// Replay feeds every record in the directory to fn in write order and
// returns the last sequence seen. Sequences must be strictly
// monotonic across segments. Segments are memory-mapped; frames are
// decoded straight out of the mapping.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := segmentFiles(dir)
	if err != nil {
		return 0, err
	}

	for _, path := range files {
		last, err := replaySegment(path, lastSeq, fn)
		if err != nil {
			return last, err
		}
		lastSeq = last
	}
	return lastSeq, nil
}

func replaySegment(path string, lastSeq uint64, fn ReplayHandler) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return lastSeq, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return lastSeq, err
	}
	if st.Size() == 0 {
		return lastSeq, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return lastSeq, err
	}
	defer m.Unmap()

	off := 0
	for off < len(m) {
		rec, n, err := readRecord(m[off:])
		if err != nil {
			return lastSeq, fmt.Errorf("wal: %s at offset %d: %w", filepath.Base(path), off, err)
		}
		off += n

		if rec.Seq <= lastSeq {
			return lastSeq, fmt.Errorf("wal: non-monotonic seq %d after %d", rec.Seq, lastSeq)
		}
		lastSeq = rec.Seq

		if err := fn(rec); err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}

var errCRCMismatch = fmt.Errorf("crc mismatch")

func readRecord(b []byte) (*Record, int, error) {
	if len(b) < headerSize {
		return nil, 0, fmt.Errorf("truncated header")
	}

	t := RecordType(b[0])
	seq := binary.BigEndian.Uint64(b[1:9])
	ts := binary.BigEndian.Uint64(b[9:17])
	l := binary.BigEndian.Uint32(b[17:21])

	total := headerSize + int(l) + 4
	if len(b) < total {
		return nil, 0, fmt.Errorf("truncated payload")
	}

	payload := b[headerSize : headerSize+int(l)]
	crc := binary.BigEndian.Uint32(b[headerSize+int(l) : total])
	if crc32.ChecksumIEEE(b[:headerSize+int(l)]) != crc {
		return nil, 0, errCRCMismatch
	}

	data := make([]byte, l)
	copy(data, payload)

	return &Record{Type: t, Seq: seq, Time: int64(ts), Data: data}, total, nil
}

// maxSeqInSegment scans a segment and returns the maximum sequence
// found. It is used ONLY for snapshot-based truncation.
func maxSeqInSegment(path string) (uint64, error) {
	var max uint64
	_, err := replaySegment(path, 0, func(r *Record) error {
		if r.Seq > max {
			max = r.Seq
		}
		return nil
	})
	return max, err
}

func parseSegmentIndex(path string) (int, error) {
	var idx int
	_, err := fmt.Sscanf(filepath.Base(path), "segment-%06d.wal", &idx)
	return idx, err
}
