/*

This file contains the gRPC-backed Transport: one unary call per miner,
addressed from a static directory supplied at construction (miner
*discovery* is out of scope here; this package only dials addresses it is
given). Payloads are carried as JSON over gRPC's generic codec rather than
a compiled protobuf schema, since the miner wire format is itself domain
configuration, not a fixed contract this system owns on both ends.

*/

package grpctransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/elys-network/lpvalidator/internal/transport"
	"github.com/elys-network/lpvalidator/internal/types"
)

const jsonCodecName = "lpvalidator-json"

// rebalanceMethod is the unary RPC every miner endpoint is expected to
// serve; the miner directory supplies only the address, not the schema.
const rebalanceMethod = "/miner.MinerService/Rebalance"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec lets grpc-go carry plain Go structs as JSON instead of
// requiring generated protobuf messages, since this system does not own
// the miner side of the wire contract.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                    { return jsonCodecName }

// Client dials miner addresses from a static directory and issues unary
// RebalanceQuery calls over gRPC.
type Client struct {
	directory map[string]string // minerID -> address

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// New returns a Client that resolves miner addresses from directory.
func New(directory map[string]string) *Client {
	d := make(map[string]string, len(directory))
	for k, v := range directory {
		d[k] = v
	}
	return &Client{directory: d, conns: make(map[string]*grpc.ClientConn)}
}

// Close tears down every dialed connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Client) connFor(minerID string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[minerID]; ok {
		return conn, nil
	}
	addr, ok := c.directory[minerID]
	if !ok {
		return nil, fmt.Errorf("%w: no address for miner %q", transport.ErrTransport, minerID)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %q: %v", transport.ErrTransport, addr, err)
	}
	c.conns[minerID] = conn
	return conn, nil
}

// Query implements transport.Transport.
func (c *Client) Query(ctx context.Context, minerID string, req types.RebalanceQuery) (*types.RebalanceResponse, error) {
	conn, err := c.connFor(minerID)
	if err != nil {
		return nil, err
	}

	var resp types.RebalanceResponse
	err = conn.Invoke(ctx, rebalanceMethod, &req, &resp, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		st, ok := status.FromError(err)
		switch {
		case ctx.Err() != nil || (ok && st.Code() == codes.DeadlineExceeded):
			return nil, transport.ErrTimeout
		case ok && st.Code() == codes.Unavailable:
			return nil, fmt.Errorf("%w: %v", transport.ErrTransport, err)
		default:
			return nil, fmt.Errorf("%w: %v", transport.ErrTransport, err)
		}
	}

	if resp.Refused {
		return &resp, transport.ErrRefused
	}
	return &resp, nil
}

var _ transport.Transport = (*Client)(nil)
