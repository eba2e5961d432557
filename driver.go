package boxon

import (
	"reflect"

	"github.com/mtrevisan/boxon/internal/bitio"
	"github.com/mtrevisan/boxon/internal/tmplerr"
)

// Driver runs an Engine over a multi-message stream, implementing a
// seek/decode/recover loop: it never returns on the first decode failure,
// instead resynchronizing at the next recognizable message boundary so
// that one corrupt message does not lose the rest of the stream.
type Driver struct {
	engine *Engine
}

// NewDriver returns a Driver running messages over e's registered
// templates.
func NewDriver(e *Engine) *Driver {
	return &Driver{engine: e}
}

// Parse walks buf front to back, producing one Response per recognized
// message plus, at most, one trailing Response if bytes remain unconsumed
// after the last successfully resynchronized attempt.
//
// States:
//   - Seeking: find the registered template whose header prefix matches
//     the current position.
//   - Decoding: run that template's full decode; a failure here does not
//     propagate — the byte range since the fallback mark is captured as
//     the failed Response's Payload.
//   - Recovering: on any failure (unknown prefix, or a decode error), scan
//     forward for the next position any registered prefix reoccurs, and
//     resume Seeking from there; if none is found, the stream is abandoned.
//   - Done: no more bytes, or no further resynchronization point exists.
func (d *Driver) Parse(buf []byte) []Response {
	r := bitio.NewReader(buf)
	var out []Response

	for r.HasRemaining() {
		start := r.Position()
		mark := r.Mark()

		tm, err := d.engine.FindTemplate(r)
		if err != nil {
			out = append(out, d.recover(r, mark, start, err))
			if !d.resync(r) {
				break
			}
			continue
		}

		rec, err := d.engine.decodeRecord(tm.TargetType, r, nil)
		if err != nil {
			out = append(out, d.recover(r, mark, start, err))
			if !d.resync(r) {
				break
			}
			continue
		}

		out = append(out, Response{Kind: ResponseOK, StartBitIndex: start, Record: rec})
		r.Unmark(mark)
	}

	if r.HasRemaining() {
		remaining := (r.Remaining() + 7) / 8
		out = append(out, Response{
			Kind:  ResponseTrailing,
			Error: &tmplerr.RemainingBytesError{Count: remaining},
		})
	}

	return out
}

// recover builds the ResponseError for a failed Seeking/Decoding attempt
// and rewinds r to the attempt's fallback point, so resync scans from the
// same byte the attempt started at.
func (d *Driver) recover(r *bitio.Reader, mark, start int, err error) Response {
	payload := r.Since(mark)
	resp := Response{
		Kind:          ResponseError,
		StartBitIndex: start,
		Error:         tmplerr.WithOffset(start, payload, err),
		Payload:       payload,
	}
	r.Reset(mark)
	return resp
}

// resync advances r to the next bit offset at which some registered
// message's header prefix recurs, reporting whether one was found. If
// none is found, the caller should stop: there is nothing left to anchor
// on. It steps past the current byte first, since a failed attempt's own
// position trivially "matches itself" and would otherwise make no
// forward progress.
func (d *Driver) resync(r *bitio.Reader) bool {
	if r.Remaining() < 8 {
		return false
	}
	_ = r.PositionTo(r.Position() + 8)

	next := d.engine.FindNextMessageIndex(r)
	if next < 0 {
		return false
	}
	_ = r.PositionTo(next)
	return true
}

// Compose encodes v — a value of a registered message type — into wire
// bytes using its Engine's Template, the encode-direction dual of Parse.
func (d *Driver) Compose(v any) ComposerResult {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	t := rv.Type()

	w := bitio.NewWriter()
	if err := d.engine.encodeRecord(t, w, rv.Interface()); err != nil {
		return ComposerResult{Source: v, Error: err}
	}
	return ComposerResult{Source: v, Message: w.Flush()}
}
