package server

import (
	"github.com/ValentinKolb/davlock/lib/store"
	"github.com/ValentinKolb/davlock/rpc/common"
)

// IRPCServerAdapter translates request messages into calls on a lock store.
type IRPCServerAdapter interface {
	// Handle executes req against s and returns the response message.
	// Errors are reported in the response, never as a Go error.
	Handle(req *common.Message, s store.ILockStore) (resp *common.Message)
}
