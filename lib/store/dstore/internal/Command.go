package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/davlock/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTLock   CommandType = iota // Insert or refresh a lock (conditional on the scope invariant).
	CommandTUnlock                    // Remove a lock by token.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTLock:
		return "Lock"
	case CommandTUnlock:
		return "Unlock"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTLock:
		return db.FeatureConditionalPut, nil
	case CommandTUnlock:
		return db.FeatureDelete, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log).
// Time is the proposer's clock (epoch seconds) so that all replicas apply the same timestamps.
type Command struct {
	Type  CommandType
	Time  uint64
	Key   string // the lock path
	Value []byte // CommandTLock: encoded lock.LockInfo, CommandTUnlock: the token
}

// headerSize is Type + Time + KeyLen
const headerSize = 1 + 8 + 4

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return headerSize + len(command.Key) + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for the proposer time (big endian),
// 4 bytes for key length (big endian),
// N bytes for key data,
// N bytes for value data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.Time)
	binary.BigEndian.PutUint32(result[9:13], uint32(len(command.Key)))

	n := copy(result[headerSize:], command.Key)
	copy(result[headerSize+n:], command.Value)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Time = binary.BigEndian.Uint64(data[1:9])
	keyLen := int(binary.BigEndian.Uint32(data[9:13]))

	if len(data) < headerSize+keyLen {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	command.Key = string(data[headerSize : headerSize+keyLen])

	if rest := data[headerSize+keyLen:]; len(rest) > 0 {
		// Reuse existing buffer if possible to reduce allocations
		if cap(command.Value) < len(rest) {
			command.Value = make([]byte, len(rest))
		} else {
			command.Value = command.Value[:len(rest)]
		}
		copy(command.Value, rest)
	} else {
		command.Value = nil
	}

	return nil
}
