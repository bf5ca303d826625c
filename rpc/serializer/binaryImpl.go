package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/davlock/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasPath     byte = 1 << 0
	hasChildren byte = 1 << 1
	hasLock     byte = 1 << 2
	hasLocks    byte = 1 << 3
	hasOk       byte = 1 << 4
	hasCode     byte = 1 << 5
	hasErr      byte = 1 << 6
	hasMeta     byte = 1 << 7
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))

	result[0] = byte(msg.MsgType)
	var flags byte = 0

	// Start after MsgType and flags
	pos := 2

	if msg.Path != "" {
		flags |= hasPath
		pos = putBytes(result, pos, []byte(msg.Path))
	}

	if msg.Children {
		flags |= hasChildren
	}

	if msg.Lock != nil {
		flags |= hasLock
		pos = putBytes(result, pos, msg.Lock)
	}

	// a list of locks is its count followed by the length prefixed records
	if msg.Locks != nil {
		flags |= hasLocks
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Locks)))
		pos += 4
		for _, l := range msg.Locks {
			pos = putBytes(result, pos, l)
		}
	}

	if msg.Ok {
		flags |= hasOk
	}

	if msg.Code > 0 {
		flags |= hasCode
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Code)
		pos += 8
	}

	if msg.Err != "" {
		flags |= hasErr
		pos = putBytes(result, pos, []byte(msg.Err))
	}

	if msg.Meta != nil {
		flags |= hasMeta
		pos = putBytes(result, pos, msg.Meta)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result[:pos], nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	pos := 2

	var (
		field []byte
		err   error
	)

	if flags&hasPath != 0 {
		if field, pos, err = readBytes(data, pos, "path"); err != nil {
			return err
		}
		msg.Path = string(field)
	}

	msg.Children = flags&hasChildren != 0

	if flags&hasLock != 0 {
		if msg.Lock, pos, err = readBytes(data, pos, "lock"); err != nil {
			return err
		}
	}

	if flags&hasLocks != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for lock count")
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4

		// every record needs at least its length prefix
		if n > (len(data)-pos)/4 {
			return fmt.Errorf("data too short for %d locks", n)
		}
		msg.Locks = make([][]byte, n)
		for i := range msg.Locks {
			if msg.Locks[i], pos, err = readBytes(data, pos, "lock record"); err != nil {
				return err
			}
		}
	}

	msg.Ok = flags&hasOk != 0

	if flags&hasCode != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for code")
		}
		msg.Code = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	}

	if flags&hasErr != 0 {
		if field, pos, err = readBytes(data, pos, "error"); err != nil {
			return err
		}
		msg.Err = string(field)
	}

	if flags&hasMeta != 0 {
		if msg.Meta, _, err = readBytes(data, pos, "meta"); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Path != "" {
		size += 4 + len(msg.Path)
	}
	if msg.Lock != nil {
		size += 4 + len(msg.Lock)
	}
	if msg.Locks != nil {
		size += 4
		for _, l := range msg.Locks {
			size += 4 + len(l)
		}
	}
	if msg.Code > 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

// putBytes writes a length prefixed byte slice at pos and returns the new position
func putBytes(dst []byte, pos int, b []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(b)))
	pos += 4
	return pos + copy(dst[pos:], b)
}

// readBytes reads a length prefixed byte slice at pos. The result is a copy
// and never nil, so empty but present fields survive the round trip.
func readBytes(data []byte, pos int, name string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s length", name)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n < 0 || pos+n > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s data", name)
	}
	out := make([]byte, n)
	copy(out, data[pos:pos+n])
	return out, pos + n, nil
}
