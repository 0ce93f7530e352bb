package wire

// Reader handles low-level protobuf wire format decoding. It is a cursor over
// one buffer and must not be shared between goroutines.
type Reader struct {
	buf []byte
	pos int
	end int
}

// NewReader creates a new wire format reader
func NewReader(data []byte) *Reader {
	return &Reader{
		buf: data,
		pos: 0,
		end: len(data),
	}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the end of the readable window. It is the buffer length
// until Limit narrows the window.
func (r *Reader) Len() int { return r.end }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return r.end - r.pos }

// Tag reads a field tag and splits it into field number and wire type.
func (r *Reader) Tag() (FieldNumber, WireType, error) {
	start := r.pos
	v, err := r.Varint()
	if err != nil {
		return 0, 0, err
	}
	if v>>3 > uint64(MaxFieldNumber) {
		return 0, 0, newWireError("tag", start, ErrFieldNumber)
	}
	num, wt := ParseTag(Tag(v))
	if num < MinFieldNumber {
		return 0, 0, newWireError("tag", start, ErrFieldNumber)
	}
	if !wt.Valid() {
		return 0, 0, newWireError("tag", start, ErrInvalidWireType)
	}
	return num, wt, nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || n > r.end-r.pos {
		return newWireError("skip", r.pos, ErrUnexpectedEOF)
	}
	r.pos += n
	return nil
}

// SkipType skips one value of the given wire type. A start group is skipped
// up to and including the next end group at its nesting level; an end group
// on its own is invalid.
func (r *Reader) SkipType(wireType WireType) error {
	return r.skip(0, wireType, 0)
}

// SkipField is SkipType for a field whose number is known: a group must be
// closed by an end group tag carrying the same number.
func (r *Reader) SkipField(fieldNumber FieldNumber, wireType WireType) error {
	return r.skip(fieldNumber, wireType, 0)
}

func (r *Reader) skip(fieldNumber FieldNumber, wireType WireType, depth int) error {
	switch wireType {
	case WireVarint:
		return r.skipVarint()
	case WireFixed64:
		return r.Skip(8)
	case WireBytes:
		n, err := r.Length()
		if err != nil {
			return err
		}
		r.pos += n
		return nil
	case WireFixed32:
		return r.Skip(4)
	case WireStartGroup:
		if depth >= DefaultMaxDepth {
			return newWireError("skip group", r.pos, ErrDepthExceeded)
		}
		for {
			if r.pos >= r.end {
				return newWireError("skip group", r.pos, ErrUnexpectedEOF)
			}
			start := r.pos
			num, wt, err := r.Tag()
			if err != nil {
				return err
			}
			if wt == WireEndGroup {
				if fieldNumber != 0 && num != fieldNumber {
					return newWireError("skip group", start, ErrEndGroup)
				}
				return nil
			}
			if err := r.skip(num, wt, depth+1); err != nil {
				return err
			}
		}
	case WireEndGroup:
		return newWireError("skip", r.pos, ErrEndGroup)
	default:
		return newWireError("skip", r.pos, ErrInvalidWireType)
	}
}

// Limit narrows the readable window to the next n bytes and returns the
// previous end, to be handed back to Restore.
func (r *Reader) Limit(n int) (int, error) {
	if n < 0 || n > r.end-r.pos {
		return 0, newWireError("limit", r.pos, ErrLengthOutOfRange)
	}
	prev := r.end
	r.end = r.pos + n
	return prev, nil
}

// Restore widens the window back to end after a Limit.
func (r *Reader) Restore(end int) {
	r.end = end
}
