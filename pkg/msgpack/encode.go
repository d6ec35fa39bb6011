package msgpack

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes v into MessagePack bytes. If dst is given, Encode
// writes into it starting at its current write position and returns it;
// otherwise it allocates a fresh Sink. On success the returned Sink's
// read cursor is rewound to zero so the caller can read the complete
// message back immediately. On failure the partially written sink (if
// the caller supplied one) is left exactly as it was written to — the
// caller owns it and decides whether to discard or truncate it.
func Encode(v Value, dst ...*Sink) (*Sink, error) {
	var sink *Sink
	switch len(dst) {
	case 0:
		sink = NewSink()
	case 1:
		sink = dst[0]
		if sink == nil {
			sink = NewSink()
		}
	default:
		return nil, fmt.Errorf("msgpack: Encode accepts at most one sink argument")
	}

	if err := encodeValue(sink, v); err != nil {
		return nil, err
	}
	sink.rewind()
	return sink, nil
}

func encodeValue(s *Sink, v Value) error {
	switch x := v.(type) {
	case nil:
		return s.WriteByte(mNil)
	case Nil:
		return s.WriteByte(mNil)
	case Bool:
		if x {
			return s.WriteByte(mTrue)
		}
		return s.WriteByte(mFalse)
	case Int:
		return encodeInt(s, int64(x))
	case Uint:
		return encodeUint(s, uint64(x))
	case Float:
		return encodeFloat(s, float64(x))
	case Str:
		return encodeStr(s, string(x))
	case Bin:
		return encodeBin(s, []byte(x))
	case Array:
		return encodeArray(s, x)
	case Map:
		return encodeMap(s, x)
	case Ext:
		return encodeExt(s, x)
	default:
		return newEncodeError(ReasonUnsupportedType, fmt.Sprintf("%T", v))
	}
}

func encodeInt(s *Sink, n int64) error {
	if n >= 0 {
		return encodeUint(s, uint64(n))
	}
	switch {
	case n >= -32:
		return s.WriteByte(byte(n))
	case n >= -128:
		if err := s.WriteByte(mInt8); err != nil {
			return err
		}
		return s.WriteByte(byte(int8(n)))
	case n >= -32768:
		if err := s.WriteByte(mInt16); err != nil {
			return err
		}
		return writeBE(s, uint16(int16(n)))
	case n >= -(1 << 31):
		if err := s.WriteByte(mInt32); err != nil {
			return err
		}
		return writeBE(s, uint32(int32(n)))
	default:
		if err := s.WriteByte(mInt64); err != nil {
			return err
		}
		return writeBE(s, uint64(n))
	}
}

func encodeUint(s *Sink, n uint64) error {
	switch {
	case n <= uint64(fixPosIntMax):
		return s.WriteByte(byte(n))
	case n <= maxUint8:
		if err := s.WriteByte(mUint8); err != nil {
			return err
		}
		return s.WriteByte(byte(n))
	case n <= maxUint16:
		if err := s.WriteByte(mUint16); err != nil {
			return err
		}
		return writeBE(s, uint16(n))
	case n <= maxUint32:
		if err := s.WriteByte(mUint32); err != nil {
			return err
		}
		return writeBE(s, uint32(n))
	default:
		if err := s.WriteByte(mUint64); err != nil {
			return err
		}
		return writeBE(s, n)
	}
}

func encodeFloat(s *Sink, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return newEncodeError(ReasonNonFiniteFloat, "")
	}
	if err := s.WriteByte(mFloat64); err != nil {
		return err
	}
	return writeBE(s, math.Float64bits(f))
}

func encodeStr(s *Sink, str string) error {
	l := len(str)
	if err := writeStrHeader(s, l); err != nil {
		return err
	}
	_, err := s.Write([]byte(str))
	return err
}

func writeStrHeader(s *Sink, l int) error {
	switch {
	case l <= fixStrMaxLen:
		return s.WriteByte(fixStrPrefix | byte(l))
	case l <= maxUint8:
		if err := s.WriteByte(mStr8); err != nil {
			return err
		}
		return s.WriteByte(byte(l))
	case l <= maxUint16:
		if err := s.WriteByte(mStr16); err != nil {
			return err
		}
		return writeBE(s, uint16(l))
	default:
		if err := s.WriteByte(mStr32); err != nil {
			return err
		}
		return writeBE(s, uint32(l))
	}
}

func encodeBin(s *Sink, b []byte) error {
	l := len(b)
	switch {
	case l <= maxUint8:
		if err := s.WriteByte(mBin8); err != nil {
			return err
		}
		if err := s.WriteByte(byte(l)); err != nil {
			return err
		}
	case l <= maxUint16:
		if err := s.WriteByte(mBin16); err != nil {
			return err
		}
		if err := writeBE(s, uint16(l)); err != nil {
			return err
		}
	default:
		if err := s.WriteByte(mBin32); err != nil {
			return err
		}
		if err := writeBE(s, uint32(l)); err != nil {
			return err
		}
	}
	_, err := s.Write(b)
	return err
}

func encodeArray(s *Sink, a Array) error {
	if err := writeContainerHeader(s, len(a), fixArrayPrefix, mArray16, mArray32); err != nil {
		return err
	}
	for _, elem := range a {
		if err := encodeValue(s, elem); err != nil {
			return err
		}
	}
	return nil
}

func encodeMap(s *Sink, m Map) error {
	if err := writeContainerHeader(s, len(m), fixMapPrefix, mMap16, mMap32); err != nil {
		return err
	}
	for _, entry := range m {
		if err := encodeStr(s, entry.Key); err != nil {
			return err
		}
		if err := encodeValue(s, entry.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeContainerHeader(s *Sink, count int, fixPrefix, marker16, marker32 byte) error {
	switch {
	case count <= 15:
		return s.WriteByte(fixPrefix | byte(count))
	case count <= maxUint16:
		if err := s.WriteByte(marker16); err != nil {
			return err
		}
		return writeBE(s, uint16(count))
	default:
		if err := s.WriteByte(marker32); err != nil {
			return err
		}
		return writeBE(s, uint32(count))
	}
}

func encodeExt(s *Sink, e Ext) error {
	l := len(e.Data)
	if l > maxUint32 {
		return newEncodeError(ReasonExtensionDataTooBig, fmt.Sprintf("length %d", l))
	}

	switch l {
	case 1:
		if err := s.WriteByte(mFixExt1); err != nil {
			return err
		}
	case 2:
		if err := s.WriteByte(mFixExt2); err != nil {
			return err
		}
	case 4:
		if err := s.WriteByte(mFixExt4); err != nil {
			return err
		}
	case 8:
		if err := s.WriteByte(mFixExt8); err != nil {
			return err
		}
	case 16:
		if err := s.WriteByte(mFixExt16); err != nil {
			return err
		}
	default:
		switch {
		case l <= maxUint8:
			if err := s.WriteByte(mExt8); err != nil {
				return err
			}
			if err := s.WriteByte(byte(l)); err != nil {
				return err
			}
		case l <= maxUint16:
			if err := s.WriteByte(mExt16); err != nil {
				return err
			}
			if err := writeBE(s, uint16(l)); err != nil {
				return err
			}
		default:
			if err := s.WriteByte(mExt32); err != nil {
				return err
			}
			if err := writeBE(s, uint32(l)); err != nil {
				return err
			}
		}
	}

	if err := s.WriteByte(byte(e.Type)); err != nil {
		return err
	}
	_, err := s.Write(e.Data)
	return err
}

// writeBE writes n to s in big-endian order using a small stack-allocated
// scratch region sized to n's width.
func writeBE[T uint16 | uint32 | uint64](s *Sink, n T) error {
	var scratch [8]byte
	switch any(n).(type) {
	case uint16:
		binary.BigEndian.PutUint16(scratch[:2], uint16(n))
		_, err := s.Write(scratch[:2])
		return err
	case uint32:
		binary.BigEndian.PutUint32(scratch[:4], uint32(n))
		_, err := s.Write(scratch[:4])
		return err
	default:
		binary.BigEndian.PutUint64(scratch[:8], uint64(n))
		_, err := s.Write(scratch[:8])
		return err
	}
}
