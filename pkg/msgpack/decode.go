package msgpack

import (
	"encoding/binary"
	"math"
)

// Decode parses a single MessagePack value starting at offset 0 of data.
// Trailing bytes after that value are not inspected and are not an error;
// Decode reports only the first top-level value.
func Decode(data []byte) (Value, error) {
	d := &decoder{data: data}
	v, err := d.decodeValue()
	if err != nil {
		return nil, err
	}
	return v, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) need(n int) ([]byte, error) {
	if d.pos+n > len(d.data) {
		return nil, newDecodeError(ReasonUnexpectedEnd, d.pos, "")
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.need(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) readUint16() (uint16, error) {
	b, err := d.need(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) readUint32() (uint32, error) {
	b, err := d.need(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) readUint64() (uint64, error) {
	b, err := d.need(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) decodeValue() (Value, error) {
	markerPos := d.pos
	marker, err := d.readByte()
	if err != nil {
		return nil, err
	}

	switch {
	case marker <= fixPosIntMax: // 0x00-0x7f
		return Int(marker), nil
	case marker >= fixMapPrefix && marker <= fixMapPrefix|fixMapMask: // 0x80-0x8f
		return d.decodeMap(int(marker & fixMapMask))
	case marker >= fixArrayPrefix && marker <= fixArrayPrefix|fixArrayMask: // 0x90-0x9f
		return d.decodeArray(int(marker & fixArrayMask))
	case marker >= fixStrPrefix && marker <= fixStrPrefix|fixStrMask: // 0xa0-0xbf
		return d.decodeStr(int(marker & fixStrMask))
	case marker >= fixNegIntMin: // 0xe0-0xff
		return Int(int64(int8(marker))), nil
	}

	switch marker {
	case mNil:
		return Nil{}, nil
	case mFalse:
		return Bool(false), nil
	case mTrue:
		return Bool(true), nil
	case mBin8:
		n, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return d.decodeBin(int(n))
	case mBin16:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return d.decodeBin(int(n))
	case mBin32:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return d.decodeBin(int(n))
	case mExt8:
		n, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return d.decodeExt(int(n))
	case mExt16:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return d.decodeExt(int(n))
	case mExt32:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return d.decodeExt(int(n))
	case mFloat32:
		b, err := d.need(4)
		if err != nil {
			return nil, err
		}
		return Float(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	case mFloat64:
		b, err := d.need(8)
		if err != nil {
			return nil, err
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(b))), nil
	case mUint8:
		n, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case mUint16:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case mUint32:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case mUint64:
		n, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		if n > 1<<63-1 {
			return Uint(n), nil
		}
		return Int(int64(n)), nil
	case mInt8:
		n, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return Int(int64(int8(n))), nil
	case mInt16:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return Int(int64(int16(n))), nil
	case mInt32:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return Int(int64(int32(n))), nil
	case mInt64:
		n, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return Int(int64(n)), nil
	case mFixExt1:
		return d.decodeExt(1)
	case mFixExt2:
		return d.decodeExt(2)
	case mFixExt4:
		return d.decodeExt(4)
	case mFixExt8:
		return d.decodeExt(8)
	case mFixExt16:
		return d.decodeExt(16)
	case mStr8:
		n, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return d.decodeStr(int(n))
	case mStr16:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return d.decodeStr(int(n))
	case mStr32:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return d.decodeStr(int(n))
	case mArray16:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return d.decodeArray(int(n))
	case mArray32:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return d.decodeArray(int(n))
	case mMap16:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return d.decodeMap(int(n))
	case mMap32:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return d.decodeMap(int(n))
	}

	return nil, newDecodeError(ReasonInvalidTypeMarker, markerPos, "")
}

// decodeStr reads a length-prefixed string payload and validates it as
// UTF-8, reporting any error at the payload's absolute offset.
func (d *decoder) decodeStr(length int) (Value, error) {
	if length < 0 {
		return nil, newDecodeError(ReasonInvalidLength, d.pos, "")
	}
	start := d.pos
	b, err := d.need(length)
	if err != nil {
		return nil, err
	}
	s, err := decodeUTF8(b, start)
	if err != nil {
		return nil, err
	}
	return Str(s), nil
}

func (d *decoder) decodeBin(length int) (Value, error) {
	if length < 0 {
		return nil, newDecodeError(ReasonInvalidLength, d.pos, "")
	}
	b, err := d.need(length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, b)
	return Bin(out), nil
}

func (d *decoder) decodeArray(count int) (Value, error) {
	if count < 0 {
		return nil, newDecodeError(ReasonInvalidLength, d.pos, "")
	}
	arr := make(Array, 0, count)
	for i := 0; i < count; i++ {
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	return arr, nil
}

func (d *decoder) decodeMap(count int) (Value, error) {
	if count < 0 {
		return nil, newDecodeError(ReasonInvalidLength, d.pos, "")
	}
	m := make(Map, 0, count)
	for i := 0; i < count; i++ {
		keyPos := d.pos
		keyVal, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		key, ok := keyVal.(Str)
		if !ok {
			return nil, newDecodeError(ReasonMapKeyNotString, keyPos, "")
		}
		val, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		overwritten := false
		for i := range m {
			if m[i].Key == string(key) {
				m[i].Value = val
				overwritten = true
				break
			}
		}
		if !overwritten {
			m = append(m, MapEntry{Key: string(key), Value: val})
		}
	}
	return m, nil
}

func (d *decoder) decodeExt(length int) (Value, error) {
	if length < 0 {
		return nil, newDecodeError(ReasonInvalidLength, d.pos, "")
	}
	typeByte, err := d.readByte()
	if err != nil {
		return nil, err
	}
	b, err := d.need(length)
	if err != nil {
		return nil, err
	}
	data := make([]byte, length)
	copy(data, b)
	return Ext{Type: int8(typeByte), Data: data}, nil
}
