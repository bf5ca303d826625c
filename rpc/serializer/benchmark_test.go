package serializer

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/davlock/lib/lock"
	"github.com/ValentinKolb/davlock/rpc/common"
)

// benchmarkMessages returns the typical messages of a WebDAV front end talking to a lock service
func benchmarkMessages() map[string]common.Message {
	manyLocks := make([]*lock.LockInfo, 32)
	for i := range manyLocks {
		manyLocks[i] = testLock(fmt.Sprintf("token-%02d", i))
	}

	return map[string]common.Message{
		"Empty":          {MsgType: common.MsgTSuccess},
		"GetLocksQuery":  *common.NewGetLocksRequest("/projects/2024/reports/quarterly.odt", false),
		"GetLocksNone":   *common.NewGetLocksResponse(nil, nil),
		"GetLocksOne":    *common.NewGetLocksResponse([]*lock.LockInfo{testLock("single")}, nil),
		"GetLocksMany":   *common.NewGetLocksResponse(manyLocks, nil),
		"LockRequest":    *common.NewLockRequest("/projects/2024", testLock("new")),
		"LockResponse":   *common.NewLockResponse(true, testLock("new"), nil),
		"UnlockResponse": *common.NewUnlockResponse(true, nil),
		"ErrorMessage":   *common.NewErrorResponse("Lorem ipsum dolor sit amet, consectetur adipiscing elit."),
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	for name, factory := range testSerializers {
		for msgName, msg := range benchmarkMessages() {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					if _, err := serializer.Serialize(msg); err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	for name, factory := range testSerializers {
		for msgName, msg := range benchmarkMessages() {
			serializer := factory()
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}

			b.Run(name+"_"+msgName, func(b *testing.B) {
				var out common.Message
				for i := 0; i < b.N; i++ {
					if err := serializer.Deserialize(data, &out); err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize reports the serialized size for each message type
func BenchmarkSize(b *testing.B) {
	for name, factory := range testSerializers {
		serializer := factory()
		for msgName, msg := range benchmarkMessages() {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}
				b.ReportMetric(float64(len(data)), "bytes")
				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
