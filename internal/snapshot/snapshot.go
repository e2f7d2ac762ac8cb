// Package snapshot implements the single canonical on-disk encoding for
// PerIPState that spec.md §9 calls for ("the original carried multiple
// divergent serialization paths... a single canonical snapshot format
// must be chosen"). Sliding windows are never serialized, per spec.md
// §6 — only the Welford trackers, the bloom filters, and the scalar
// fields survive a restart.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/crlsmrls/logsentry/internal/state"
	"github.com/crlsmrls/logsentry/internal/util/bloom"
	"github.com/crlsmrls/logsentry/internal/util/stats"
)

// Magic identifies a logsentry state snapshot: "SNT1".
var Magic = [4]byte{0x53, 0x4E, 0x54, 0x31}

const formatVersion = 1

// Write encodes every resident PerIPState in store to w as a sequence
// of fixed-then-variable-length records behind the Magic/version
// header. It does not take a store-wide lock; entries mutated mid-write
// may appear with their state as of whichever instant ForEach visited
// them.
func Write(w io.Writer, store *state.Store) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(Magic[:]); err != nil {
		return fmt.Errorf("snapshot: write magic: %w", err)
	}
	if err := bw.WriteByte(formatVersion); err != nil {
		return fmt.Errorf("snapshot: write version: %w", err)
	}

	var records [][]byte
	var encErr error
	store.IPs.ForEach(func(key uint64, v *state.PerIPState) {
		if encErr != nil {
			return
		}
		records = append(records, encodeIPState(uint32(key), v))
	})
	if encErr != nil {
		return encErr
	}

	if err := writeUint32(bw, uint32(len(records))); err != nil {
		return fmt.Errorf("snapshot: write record count: %w", err)
	}
	for _, rec := range records {
		if err := writeUint32(bw, uint32(len(rec))); err != nil {
			return fmt.Errorf("snapshot: write record length: %w", err)
		}
		if _, err := bw.Write(rec); err != nil {
			return fmt.Errorf("snapshot: write record: %w", err)
		}
	}

	return bw.Flush()
}

// IPRecord is one restored PerIPState, keyed the way state.Store
// indexes it (the low 32 bits of the table key).
type IPRecord struct {
	Key   uint32
	State *state.PerIPState
}

// Read decodes a snapshot previously produced by Write, returning one
// IPRecord per encoded entry. cfg is used to construct each restored
// PerIPState's sliding windows (left empty, per spec.md §6) and exact
// reservoirs; a record whose bloom filter fails to decode makes Read
// return an error.
func Read(r io.Reader, cfg state.PerIPStateConfig) ([]IPRecord, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("snapshot: read magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("snapshot: bad magic %x, expected %x", magic, Magic)
	}
	version, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("snapshot: read version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("snapshot: unsupported version %d", version)
	}

	count, err := readUint32(br)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read record count: %w", err)
	}

	records := make([]IPRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		recLen, err := readUint32(br)
		if err != nil {
			return nil, fmt.Errorf("snapshot: read record %d length: %w", i, err)
		}
		buf := make([]byte, recLen)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("snapshot: read record %d: %w", i, err)
		}
		key, st, err := decodeIPState(buf, cfg)
		if err != nil {
			return nil, fmt.Errorf("snapshot: decode record %d: %w", i, err)
		}
		records = append(records, IPRecord{Key: key, State: st})
	}
	return records, nil
}

// Restore loads a previously written snapshot directly into store,
// keeping its sliding windows empty (spec.md §6) and resuming every
// other field exactly as captured.
func Restore(r io.Reader, store *state.Store, cfg state.PerIPStateConfig) (int, error) {
	records, err := Read(r, cfg)
	if err != nil {
		return 0, err
	}
	now := int64(0)
	for _, rec := range records {
		if rec.State.LastSeenMs > now {
			now = rec.State.LastSeenMs
		}
	}
	for _, rec := range records {
		dst := store.IPs.GetOrCreate(uint64(rec.Key), now)
		*dst = *rec.State
	}
	return len(records), nil
}

func encodeIPState(key uint32, v *state.PerIPState) []byte {
	out := make([]byte, 0, 256)
	out = appendUint32(out, key)
	out = appendInt64(out, v.FirstSeenMs)
	out = appendInt64(out, v.LastSeenMs)
	out = append(out, v.ThreatFlags)
	out = append(out, v.ActivityPattern[0], v.ActivityPattern[1], v.ActivityPattern[2])
	out = appendInt64(out, v.RequestCount)
	out = appendInt64(out, v.ErrorCount)
	out = appendTracker(out, v.DurationStats)
	out = appendTracker(out, v.BytesStats)
	out = appendTracker(out, v.ErrorRateStats)
	out = appendTracker(out, v.VolumeStats)
	out = appendBloom(out, v.PathsSeen)
	out = appendBloom(out, v.UserAgentsSeen)
	return out
}

func decodeIPState(buf []byte, cfg state.PerIPStateConfig) (uint32, *state.PerIPState, error) {
	st := state.NewPerIPState(cfg, 0)

	key, buf, err := takeUint32(buf)
	if err != nil {
		return 0, nil, err
	}
	st.FirstSeenMs, buf, err = takeInt64(buf)
	if err != nil {
		return 0, nil, err
	}
	st.LastSeenMs, buf, err = takeInt64(buf)
	if err != nil {
		return 0, nil, err
	}
	if len(buf) < 4 {
		return 0, nil, fmt.Errorf("short buffer for flags/pattern")
	}
	st.ThreatFlags = buf[0]
	st.ActivityPattern = [3]uint8{buf[1], buf[2], buf[3]}
	buf = buf[4:]

	st.RequestCount, buf, err = takeInt64(buf)
	if err != nil {
		return 0, nil, err
	}
	st.ErrorCount, buf, err = takeInt64(buf)
	if err != nil {
		return 0, nil, err
	}

	st.DurationStats, buf, err = takeTracker(buf)
	if err != nil {
		return 0, nil, err
	}
	st.BytesStats, buf, err = takeTracker(buf)
	if err != nil {
		return 0, nil, err
	}
	st.ErrorRateStats, buf, err = takeTracker(buf)
	if err != nil {
		return 0, nil, err
	}
	st.VolumeStats, buf, err = takeTracker(buf)
	if err != nil {
		return 0, nil, err
	}

	st.PathsSeen, buf, err = takeBloom(buf)
	if err != nil {
		return 0, nil, err
	}
	st.UserAgentsSeen, buf, err = takeBloom(buf)
	if err != nil {
		return 0, nil, err
	}

	return key, st, nil
}

func appendTracker(out []byte, t *stats.Tracker) []byte {
	out = appendInt64(out, t.Count())
	out = appendUint64(out, math.Float64bits(t.Sum()))
	out = appendUint64(out, math.Float64bits(t.SumSq()))
	return out
}

func takeTracker(buf []byte) (*stats.Tracker, []byte, error) {
	count, buf, err := takeInt64(buf)
	if err != nil {
		return nil, nil, err
	}
	sumBits, buf, err := takeUint64(buf)
	if err != nil {
		return nil, nil, err
	}
	sumSqBits, buf, err := takeUint64(buf)
	if err != nil {
		return nil, nil, err
	}
	return stats.LoadTracker(count, math.Float64frombits(sumBits), math.Float64frombits(sumSqBits)), buf, nil
}

func appendBloom(out []byte, f *bloom.Filter) []byte {
	payload := f.Serialize()
	out = appendUint32(out, uint32(len(payload)))
	return append(out, payload...)
}

func takeBloom(buf []byte) (*bloom.Filter, []byte, error) {
	length, buf, err := takeUint32(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(buf)) < length {
		return nil, nil, fmt.Errorf("short buffer for bloom payload")
	}
	f, _, err := bloom.Deserialize(buf[:length])
	if err != nil {
		return nil, nil, fmt.Errorf("decode bloom filter: %w", err)
	}
	return f, buf[length:], nil
}

func appendUint32(out []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(out, b[:]...)
}

func appendUint64(out []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(out, b[:]...)
}

func appendInt64(out []byte, v int64) []byte {
	return appendUint64(out, uint64(v))
}

func takeUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, fmt.Errorf("short buffer for uint32")
	}
	return binary.LittleEndian.Uint32(buf[:4]), buf[4:], nil
}

func takeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("short buffer for uint64")
	}
	return binary.LittleEndian.Uint64(buf[:8]), buf[8:], nil
}

func takeInt64(buf []byte) (int64, []byte, error) {
	v, rest, err := takeUint64(buf)
	return int64(v), rest, err
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
