// Package msgpack implements the MessagePack binary interchange format:
// a pair of pure functions that serialize a dynamic Value tree to bytes
// and parse bytes back into an equivalent Value tree.
//
// See https://github.com/msgpack/msgpack/blob/master/spec.md for the
// wire format this package implements.
package msgpack

// Format markers. Most of the wire format lives in contiguous fix-ranges
// (checked with range comparisons, not these constants); the names below
// cover every marker that isn't part of a range.
const (
	mNil byte = 0xc0

	mFalse byte = 0xc2
	mTrue  byte = 0xc3

	mBin8  byte = 0xc4
	mBin16 byte = 0xc5
	mBin32 byte = 0xc6

	mExt8  byte = 0xc7
	mExt16 byte = 0xc8
	mExt32 byte = 0xc9

	mFloat32 byte = 0xca
	mFloat64 byte = 0xcb

	mUint8  byte = 0xcc
	mUint16 byte = 0xcd
	mUint32 byte = 0xce
	mUint64 byte = 0xcf

	mInt8  byte = 0xd0
	mInt16 byte = 0xd1
	mInt32 byte = 0xd2
	mInt64 byte = 0xd3

	mFixExt1  byte = 0xd4
	mFixExt2  byte = 0xd5
	mFixExt4  byte = 0xd6
	mFixExt8  byte = 0xd7
	mFixExt16 byte = 0xd8

	mStr8  byte = 0xd9
	mStr16 byte = 0xda
	mStr32 byte = 0xdb

	mArray16 byte = 0xdc
	mArray32 byte = 0xdd

	mMap16 byte = 0xde
	mMap32 byte = 0xdf
)

// Fix-range bounds and masks.
const (
	fixPosIntMax byte = 0x7f // positive fixint: 0x00-0x7f

	fixMapPrefix byte = 0x80 // 0x80-0x8f
	fixMapMask   byte = 0x0f

	fixArrayPrefix byte = 0x90 // 0x90-0x9f
	fixArrayMask   byte = 0x0f

	fixStrPrefix byte = 0xa0 // 0xa0-0xbf
	fixStrMask   byte = 0x1f

	fixNegIntMin byte = 0xe0 // negative fixint: 0xe0-0xff
)

const (
	fixStrMaxLen   = 31
	fixArrayMaxLen = 15
	fixMapMaxLen   = 15

	maxUint8  = 1<<8 - 1
	maxUint16 = 1<<16 - 1
	maxUint32 = 1<<32 - 1
)
