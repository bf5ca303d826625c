package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Path     string `json:"path,omitempty"`     // Used for: GetLocks, Lock, Unlock
	Children bool   `json:"children,omitempty"` // Used for: GetLocks

	// Locks in their binary record format (see lock.LockInfo.Serialize)
	Lock  []byte   `json:"lock,omitempty"`  // Used for: Lock, Unlock (request), Lock (response)
	Locks [][]byte `json:"locks,omitempty"` // Used for: GetLocks (response)

	// Response only fields
	Ok   bool   `json:"ok,omitempty"`   // Used for: Lock, Unlock responses
	Code uint64 `json:"code,omitempty"` // store.RetCode of a failed operation
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: DBInfo (json encoded db.DatabaseInfo)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// setErr copies err into the message. Store errors keep their return code.
func (m *Message) setErr(err error) *Message {
	if err == nil {
		return m
	}
	m.Err = err.Error()
	m.Code = uint64(store.RetCInternalError)
	if serr, ok := err.(*store.Error); ok {
		m.Err = serr.Msg
		m.Code = uint64(serr.Code)
	}
	return m
}

// StoreError reconstructs the store error carried by a response, nil if there is none.
func (m *Message) StoreError() error {
	if m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	code := store.RetCode(m.Code)
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return store.NewError(code, m.Err)
}

// NewGetLocksRequest creates a new GetLocks request
func NewGetLocksRequest(path string, children bool) *Message {
	return &Message{
		MsgType:  MsgTLCKGetLocks,
		Path:     path,
		Children: children,
	}
}

// NewGetLocksResponse creates a new GetLocks response
func NewGetLocksResponse(locks []*lock.LockInfo, err error) *Message {
	msg := &Message{
		MsgType: MsgTLCKGetLocks,
	}
	for _, l := range locks {
		msg.Locks = append(msg.Locks, l.Serialize())
	}
	return msg.setErr(err)
}

// NewLockRequest creates a new Lock request
func NewLockRequest(path string, info *lock.LockInfo) *Message {
	return &Message{
		MsgType: MsgTLCKLock,
		Path:    path,
		Lock:    info.Serialize(),
	}
}

// NewLockResponse creates a new Lock response. info is the lock as stamped by the store.
func NewLockResponse(ok bool, info *lock.LockInfo, err error) *Message {
	msg := &Message{
		MsgType: MsgTLCKLock,
		Ok:      ok,
	}
	if info != nil && err == nil {
		msg.Lock = info.Serialize()
	}
	return msg.setErr(err)
}

// NewUnlockRequest creates a new Unlock request
func NewUnlockRequest(path string, info *lock.LockInfo) *Message {
	return &Message{
		MsgType: MsgTLCKUnlock,
		Path:    path,
		Lock:    info.Serialize(),
	}
}

// NewUnlockResponse creates a new Unlock response
func NewUnlockResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTLCKUnlock,
		Ok:      ok,
	}
	return msg.setErr(err)
}

// NewDBInfoRequest creates a new DBInfo request
func NewDBInfoRequest() *Message {
	return &Message{
		MsgType: MsgTLCKDBInfo,
	}
}

// NewDBInfoResponse creates a new DBInfo response
func NewDBInfoResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTLCKDBInfo,
		Meta:    meta,
	}
	return msg.setErr(err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    uint64(store.RetCInvalidOperation),
		Err:     err,
	}
}

// DecodeLocks decodes the lock records of a GetLocks response.
func (m *Message) DecodeLocks() ([]*lock.LockInfo, error) {
	locks := make([]*lock.LockInfo, 0, len(m.Locks))
	for i, data := range m.Locks {
		l, err := lock.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("lock %d: %w", i, err)
		}
		locks = append(locks, l)
	}
	return locks, nil
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTLCKGetLocks:
		return "getLocks"
	case MsgTLCKLock:
		return "lock"
	case MsgTLCKUnlock:
		return "unlock"
	case MsgTLCKDBInfo:
		return "dbInfo"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "getLocks":
		*t = MsgTLCKGetLocks
	case "lock":
		*t = MsgTLCKLock
	case "unlock":
		*t = MsgTLCKUnlock
	case "dbInfo":
		*t = MsgTLCKDBInfo
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	case "unknown":
		*t = MsgTUnknown
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// ILockStore operations

	MsgTLCKGetLocks // Query the locks of a path
	MsgTLCKLock     // Create or refresh a lock
	MsgTLCKUnlock   // Remove a lock
	MsgTLCKDBInfo   // Metadata of the underlying lock table
)
