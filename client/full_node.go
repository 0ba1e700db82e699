// Package client is the typed gRPC client wallets use to reach one full node.
package client

import (
	"context"
	"time"

	"github.com/Luismorlan/pow_ledger/model"
	"github.com/Luismorlan/pow_ledger/network"
	"github.com/Luismorlan/pow_ledger/service"
	"github.com/Luismorlan/pow_ledger/utils"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

const DEFAULT_TIMEOUT = 10 * time.Second

// FullNode talks to a single full node. Errors returned by the node are
// mapped back to the model sentinels.
type FullNode struct {
	addr    network.Address
	conn    *grpc.ClientConn
	client  service.FullNodeServiceClient
	timeout time.Duration
}

// Dial connects lazily to the node at addr, nothing is sent until the first
// call.
func Dial(addr network.Address, opts ...grpc.DialOption) (*FullNode, error) {
	peer, err := network.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &FullNode{addr: addr, conn: peer.Conn, client: peer.Client, timeout: DEFAULT_TIMEOUT}, nil
}

func (f *FullNode) Addr() network.Address {
	return f.addr
}

// SetTimeout bounds every call, 0 keeps the caller's deadline only.
func (f *FullNode) SetTimeout(d time.Duration) {
	f.timeout = d
}

func (f *FullNode) Close() error {
	return f.conn.Close()
}

func (f *FullNode) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

func (f *FullNode) GetBalance(ctx context.Context, address string) (float64, error) {
	ctx, cancel := f.callContext(ctx)
	defer cancel()
	res, err := f.client.GetBalance(ctx, &service.GetBalanceRequest{Address: address})
	if err != nil {
		return 0, service.FromStatus(err)
	}
	return res.Balance, nil
}

// GetInputs asks the node to select unspent outputs of address covering
// amount. change is nil when they match exactly.
func (f *FullNode) GetInputs(ctx context.Context, address string, amount float64) ([]model.Output, *model.Output, error) {
	ctx, cancel := f.callContext(ctx)
	defer cancel()
	res, err := f.client.GetInputs(ctx, &service.GetInputsRequest{Address: address, Amount: amount})
	if err != nil {
		return nil, nil, service.FromStatus(err)
	}
	return res.Inputs, res.Change, nil
}

// SubmitTransaction hands a signed transaction to the node together with the
// sender's public key.
func (f *FullNode) SubmitTransaction(ctx context.Context, tx *model.Transaction, publicKey []byte) error {
	ctx, cancel := f.callContext(ctx)
	defer cancel()
	_, err := f.client.AddTransaction(ctx, &service.AddTransactionRequest{
		Transaction: tx,
		PublicKey:   utils.BytesToHex(publicKey),
	})
	return service.FromStatus(err)
}

func (f *FullNode) GetBlockchain(ctx context.Context) ([]model.Block, error) {
	ctx, cancel := f.callContext(ctx)
	defer cancel()
	res, err := f.client.GetBlockchain(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, service.FromStatus(err)
	}
	return res.Blockchain, nil
}

func (f *FullNode) GetPeers(ctx context.Context) ([]network.Address, error) {
	ctx, cancel := f.callContext(ctx)
	defer cancel()
	res, err := f.client.GetPeers(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, service.FromStatus(err)
	}
	var peers []network.Address
	for _, p := range res.Peers {
		peers = append(peers, network.FromNodeAddr(p))
	}
	return peers, nil
}
