package rsrpc

// client.go implements Client over net/rpc. The service method name
// ("RangeServer.Update") mirrors RangeServerProtocol's COMMAND_UPDATE; the
// actual framing (gob over TCP) is net/rpc's default and is deliberately
// left unspecified here — wire-protocol detail this collaborator owns, not
// SharedMutator.

import (
	"context"
	"net/rpc"
)

// NetRPCClient dials a single range server address and issues Update calls
// over net/rpc.
type NetRPCClient struct {
	rpc *rpc.Client
}

// DialNetRPC connects to a range server listening at addr.
func DialNetRPC(addr string) (*NetRPCClient, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &NetRPCClient{rpc: c}, nil
}

// updateArgs/updateReply are the net/rpc gob-encoded wire types; Update
// translates to/from the package's public Mutation/UpdateResult types so the
// wire shape can evolve independently of the public API.
type updateArgs struct {
	Spec      RangeSpec
	Mutations []Mutation
}

type updateReply struct {
	Failed    []FailedMutation
	Retryable []int
}

func (c *NetRPCClient) Update(ctx context.Context, spec RangeSpec, mutations []Mutation) (UpdateResult, error) {
	call := c.rpc.Go("RangeServer.Update", &updateArgs{Spec: spec, Mutations: mutations}, &updateReply{}, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return UpdateResult{}, ctx.Err()
	case done := <-call.Done:
		if done.Error != nil {
			return UpdateResult{}, done.Error
		}
		reply := done.Reply.(*updateReply)
		return UpdateResult{Failed: reply.Failed, Retryable: reply.Retryable}, nil
	}
}

func (c *NetRPCClient) Close() error { return c.rpc.Close() }
