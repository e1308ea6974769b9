package results

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Magic opens every record log.
const Magic = "OVLREC01"

// maxRecordSize bounds a single payload when reading.
const maxRecordSize = 64 << 20

// Recorder appends CBOR encoded records, each prefixed by a timestamp and payload length.
// It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	closer io.Closer
	w      *bufio.Writer
	enc    cbor.EncMode
	path   string
}

// Create opens a new timestamped log file in dir.
func Create(dir, prefix string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}
	name := filepath.Join(dir, fmt.Sprintf("%s_%s.cbor", time.Now().Format("20060102_150405"), prefix))
	f, err := os.Create(name)
	if err != nil {
		return nil, errors.Wrap(err, "create record log")
	}
	r, err := NewRecorder(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.path = name
	return r, nil
}

// NewRecorder writes the log header to w. Close closes w when it is an io.Closer.
func NewRecorder(w io.Writer) (*Recorder, error) {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "cbor encoder")
	}
	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.WriteString(Magic); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	if err := bw.Flush(); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	r := &Recorder{w: bw, enc: enc}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// Path is the log file, empty for recorders built on a plain writer.
func (r *Recorder) Path() string {
	return r.path
}

// Publish appends rec and flushes it.
func (r *Recorder) Publish(rec Record) error {
	payload, err := r.enc.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode record")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return errors.New("recorder is closed")
	}
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return errors.Wrap(err, "write record")
	}
	if _, err := r.w.Write(payload); err != nil {
		return errors.Wrap(err, "write record")
	}
	return errors.Wrap(r.w.Flush(), "flush record")
}

// Close flushes pending data. Calling it twice is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	err := r.w.Flush()
	r.w = nil
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadAll decodes every record in a log. A truncated final record ends the read without error.
func ReadAll(rd io.Reader) ([]Record, error) {
	br := bufio.NewReader(rd)
	header := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if string(header) != Magic {
		return nil, errors.Errorf("unexpected record log magic %q", string(header))
	}

	var out []Record
	for {
		var meta [12]byte
		if _, err := io.ReadFull(br, meta[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return out, nil
			}
			return out, errors.Wrap(err, "read record header")
		}
		size := binary.LittleEndian.Uint32(meta[8:12])
		if size > maxRecordSize {
			return out, errors.Errorf("record %d: size %d exceeds limit", len(out), size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return out, nil
			}
			return out, errors.Wrap(err, "read record payload")
		}
		var rec Record
		if err := cbor.Unmarshal(payload, &rec); err != nil {
			return out, errors.Wrapf(err, "record %d", len(out))
		}
		out = append(out, rec)
	}
}
