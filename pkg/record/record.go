// Package record implements the self-delimiting on-disk log record codec.
//
// Every append to a segment file is a single JSON object followed by nothing
// else on the wire; record boundaries during sequential replay are tracked
// with encoding/json's streaming decoder rather than a length prefix, per
// §3 of the specification. Point reads, where the caller already knows the
// exact byte length from the index, skip the streaming decoder entirely and
// unmarshal the slice directly.
package record

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/iamNilotpal/ignite/pkg/errors"
)

// Kind identifies what a Record represents on disk.
type Kind string

const (
	// KindSet is a plain key/value write with no expiry.
	KindSet Kind = "set"

	// KindRemove is a tombstone: it carries only the key being deleted and
	// no value.
	KindRemove Kind = "remove"

	// KindSetExpiring is a key/value write carrying a Unix-epoch expiry,
	// only ever produced when expiring keys are enabled.
	KindSetExpiring Kind = "setx"
)

// Record is the decoded, in-memory form of a single log entry.
type Record struct {
	Kind      Kind
	Key       string
	Value     []byte
	ExpiresAt int64 // unix seconds; zero unless Kind == KindSetExpiring
}

// wireRecord is the exact JSON shape persisted to disk. Field names are
// kept short since every record pays their cost on every append.
type wireRecord struct {
	Kind      Kind   `json:"k"`
	Key       string `json:"key"`
	Value     []byte `json:"val"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// Encode serializes r to its on-disk JSON representation.
func Encode(r Record) ([]byte, error) {
	w := wireRecord{Kind: r.Kind, Key: r.Key, Value: r.Value, ExpiresAt: r.ExpiresAt}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, errors.NewSerdeError(err, "encode record").WithDetail("key", r.Key)
	}
	return b, nil
}

// Decode unmarshals a single, exact record slice — used for point reads
// where the caller already knows the record's length from the index.
func Decode(b []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return Record{}, errors.NewSerdeError(err, "decode record").WithBytesConsumed(int64(len(b)))
	}
	return Record{Kind: w.Kind, Key: w.Key, Value: w.Value, ExpiresAt: w.ExpiresAt}, nil
}

// Entry is one record recovered during sequential replay, tagged with the
// exact byte range it occupied in the segment so the index can be rebuilt
// without re-encoding anything.
type Entry struct {
	Record Record
	Offset int64
	Length int64
}

// StreamDecoder replays every record in a segment in order, using
// json.Decoder's InputOffset to recover each record's exact byte boundaries
// since the wire format carries no explicit length prefix.
type StreamDecoder struct {
	dec  *json.Decoder
	prev int64
}

// NewStreamDecoder wraps r for sequential replay.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	return &StreamDecoder{dec: json.NewDecoder(r)}
}

// Next decodes the next record, returning io.EOF when the segment is
// exhausted. A truncated final record (a torn write from a crash mid-append)
// also surfaces as io.EOF rather than a decode error, per §5.2's recovery
// rule: replay stops at the first incomplete record instead of failing
// open entirely.
func (d *StreamDecoder) Next() (Entry, error) {
	start := d.prev

	var w wireRecord
	if err := d.dec.Decode(&w); err != nil {
		if _, torn := err.(*json.SyntaxError); torn || stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, errors.NewSerdeError(err, "replay record").WithBytesConsumed(start)
	}

	end := d.dec.InputOffset()
	d.prev = end

	return Entry{
		Record: Record{Kind: w.Kind, Key: w.Key, Value: w.Value, ExpiresAt: w.ExpiresAt},
		Offset: start,
		Length: end - start,
	}, nil
}
