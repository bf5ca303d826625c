package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

func testLock(token string) *lock.LockInfo {
	return &lock.LockInfo{
		Owner:   "alice",
		Token:   token,
		Timeout: 600,
		Created: 1700000000,
		Scope:   lock.ScopeShared,
		Depth:   lock.DepthInfinity,
		URI:     "/docs/report.odt",
	}
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		{MsgType: common.MsgTSuccess},
		*common.NewGetLocksRequest("/docs/report.odt", true),
		*common.NewGetLocksResponse([]*lock.LockInfo{testLock("a"), testLock("b")}, nil),
		*common.NewLockRequest("/docs", testLock("c")),
		*common.NewLockResponse(true, testLock("c"), nil),
		*common.NewUnlockResponse(false, nil),
		*common.NewDBInfoResponse([]byte(`{"size_bytes":12}`), nil),
		*common.NewErrorResponse("test error message"),
		{
			MsgType:  common.MsgTLCKLock,
			Path:     "/all/fields",
			Children: true,
			Lock:     []byte("lock"),
			Locks:    [][]byte{[]byte("one"), []byte("two")},
			Ok:       true,
			Code:     4,
			Err:      "conflict",
			Meta:     []byte("meta"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range testMessages() {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v", i, msg, result)
				}
			}
		})
	}
}

// TestDeserializeResetsFields checks that a reused message does not keep fields of an earlier one
func TestDeserializeResetsFields(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(*common.NewUnlockResponse(true, nil))
			if err != nil {
				t.Fatal(err)
			}

			msg := common.Message{Path: "/stale", Err: "stale", Locks: [][]byte{[]byte("x")}}
			if err := serializer.Deserialize(data, &msg); err != nil {
				t.Fatal(err)
			}
			if msg.Path != "" || msg.Err != "" || msg.Locks != nil || !msg.Ok {
				t.Errorf("unexpected message after decode: %+v", msg)
			}
		})
	}
}

func TestLocksSurviveRoundTrip(t *testing.T) {
	want := []*lock.LockInfo{testLock("a"), testLock("b")}
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(*common.NewGetLocksResponse(want, nil))
			if err != nil {
				t.Fatal(err)
			}
			var msg common.Message
			if err := serializer.Deserialize(data, &msg); err != nil {
				t.Fatal(err)
			}
			got, err := msg.DecodeLocks()
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

// TestBinaryEmptyFields tests that present but empty byte slices keep their presence
func TestBinaryEmptyFields(t *testing.T) {
	serializer := NewBinarySerializer()

	tests := []struct {
		name string
		msg  common.Message
	}{
		{"empty message", common.Message{}},
		{"empty lock", common.Message{MsgType: common.MsgTLCKLock, Lock: []byte{}}},
		{"empty lock list", common.Message{MsgType: common.MsgTLCKGetLocks, Locks: [][]byte{}}},
		{"empty record in list", common.Message{MsgType: common.MsgTLCKGetLocks, Locks: [][]byte{{}}}},
		{"empty meta", common.Message{MsgType: common.MsgTLCKDBInfo, Meta: []byte{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := serializer.Serialize(tt.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if !reflect.DeepEqual(tt.msg, result) {
				t.Errorf("expected %+v, got %+v", tt.msg, result)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	tests := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{"Empty data", []byte{}, true},
		{"Too short header", []byte{1}, true},
		{"Valid header only", []byte{1, 0}, false},
		{"Invalid length for path", []byte{3, byte(hasPath), 0, 0, 0, 5, 'a', 'b', 'c'}, true},
		{"Invalid length for lock", []byte{4, byte(hasLock), 0, 0, 0, 10}, true},
		{"Too many locks", []byte{3, byte(hasLocks), 0xff, 0xff, 0xff, 0xff}, true},
		{"Truncated code", []byte{2, byte(hasCode), 0, 0, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tt.data, &msg)

			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tt.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"binary", "json", "gob"} {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q): %v", name, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Error("expected an error for an unknown serializer")
	}
}
