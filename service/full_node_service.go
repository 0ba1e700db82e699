// Package service describes the gRPC surface of a full node. Messages are
// plain Go structs carried by a JSON codec.
package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const SERVICE_NAME = "pow_ledger.FullNodeService"

// Method names, also the endpoints handed to network.Broadcast.
const (
	ADD_BLOCK          = "AddBlock"
	SYNC_BLOCKCHAIN    = "SyncBlockchain"
	ADD_TRANSACTION    = "AddTransaction"
	GET_INPUTS         = "GetInputs"
	GET_BALANCE        = "GetBalance"
	GET_BLOCKCHAIN     = "GetBlockchain"
	GET_ORPHAN_BLOCKS  = "GetOrphanBlocks"
	GET_UNSPENT_INPUTS = "GetUnspentInputs"
	ADD_PEER           = "AddPeer"
	GET_PEERS          = "GetPeers"
)

// FullMethod returns the gRPC path of a method of the service.
func FullMethod(method string) string {
	return "/" + SERVICE_NAME + "/" + method
}

type FullNodeServiceServer interface {
	AddBlock(context.Context, *AddBlockRequest) (*AddBlockResponse, error)
	SyncBlockchain(context.Context, *SyncBlockchainRequest) (*SyncBlockchainResponse, error)
	AddTransaction(context.Context, *AddTransactionRequest) (*AddTransactionResponse, error)
	GetInputs(context.Context, *GetInputsRequest) (*GetInputsResponse, error)
	GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceResponse, error)
	GetBlockchain(context.Context, *emptypb.Empty) (*GetBlockchainResponse, error)
	GetOrphanBlocks(context.Context, *emptypb.Empty) (*GetOrphanBlocksResponse, error)
	GetUnspentInputs(context.Context, *emptypb.Empty) (*GetUnspentInputsResponse, error)
	AddPeer(context.Context, *AddPeerRequest) (*emptypb.Empty, error)
	GetPeers(context.Context, *emptypb.Empty) (*GetPeersResponse, error)
	mustEmbedUnimplementedFullNodeServiceServer()
}

// Embed to stay forward compatible.
type UnimplementedFullNodeServiceServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedFullNodeServiceServer) AddBlock(context.Context, *AddBlockRequest) (*AddBlockResponse, error) {
	return nil, unimplemented(ADD_BLOCK)
}
func (UnimplementedFullNodeServiceServer) SyncBlockchain(context.Context, *SyncBlockchainRequest) (*SyncBlockchainResponse, error) {
	return nil, unimplemented(SYNC_BLOCKCHAIN)
}
func (UnimplementedFullNodeServiceServer) AddTransaction(context.Context, *AddTransactionRequest) (*AddTransactionResponse, error) {
	return nil, unimplemented(ADD_TRANSACTION)
}
func (UnimplementedFullNodeServiceServer) GetInputs(context.Context, *GetInputsRequest) (*GetInputsResponse, error) {
	return nil, unimplemented(GET_INPUTS)
}
func (UnimplementedFullNodeServiceServer) GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceResponse, error) {
	return nil, unimplemented(GET_BALANCE)
}
func (UnimplementedFullNodeServiceServer) GetBlockchain(context.Context, *emptypb.Empty) (*GetBlockchainResponse, error) {
	return nil, unimplemented(GET_BLOCKCHAIN)
}
func (UnimplementedFullNodeServiceServer) GetOrphanBlocks(context.Context, *emptypb.Empty) (*GetOrphanBlocksResponse, error) {
	return nil, unimplemented(GET_ORPHAN_BLOCKS)
}
func (UnimplementedFullNodeServiceServer) GetUnspentInputs(context.Context, *emptypb.Empty) (*GetUnspentInputsResponse, error) {
	return nil, unimplemented(GET_UNSPENT_INPUTS)
}
func (UnimplementedFullNodeServiceServer) AddPeer(context.Context, *AddPeerRequest) (*emptypb.Empty, error) {
	return nil, unimplemented(ADD_PEER)
}
func (UnimplementedFullNodeServiceServer) GetPeers(context.Context, *emptypb.Empty) (*GetPeersResponse, error) {
	return nil, unimplemented(GET_PEERS)
}
func (UnimplementedFullNodeServiceServer) mustEmbedUnimplementedFullNodeServiceServer() {}

// unaryMethod adapts a typed server method to a grpc.MethodDesc.
func unaryMethod[Req any, Resp any](name string, call func(FullNodeServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(FullNodeServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(FullNodeServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var FullNodeService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: SERVICE_NAME,
	HandlerType: (*FullNodeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(ADD_BLOCK, FullNodeServiceServer.AddBlock),
		unaryMethod(SYNC_BLOCKCHAIN, FullNodeServiceServer.SyncBlockchain),
		unaryMethod(ADD_TRANSACTION, FullNodeServiceServer.AddTransaction),
		unaryMethod(GET_INPUTS, FullNodeServiceServer.GetInputs),
		unaryMethod(GET_BALANCE, FullNodeServiceServer.GetBalance),
		unaryMethod(GET_BLOCKCHAIN, FullNodeServiceServer.GetBlockchain),
		unaryMethod(GET_ORPHAN_BLOCKS, FullNodeServiceServer.GetOrphanBlocks),
		unaryMethod(GET_UNSPENT_INPUTS, FullNodeServiceServer.GetUnspentInputs),
		unaryMethod(ADD_PEER, FullNodeServiceServer.AddPeer),
		unaryMethod(GET_PEERS, FullNodeServiceServer.GetPeers),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "full_node_service",
}

func RegisterFullNodeServiceServer(s grpc.ServiceRegistrar, srv FullNodeServiceServer) {
	s.RegisterService(&FullNodeService_ServiceDesc, srv)
}

type FullNodeServiceClient interface {
	AddBlock(ctx context.Context, in *AddBlockRequest, opts ...grpc.CallOption) (*AddBlockResponse, error)
	SyncBlockchain(ctx context.Context, in *SyncBlockchainRequest, opts ...grpc.CallOption) (*SyncBlockchainResponse, error)
	AddTransaction(ctx context.Context, in *AddTransactionRequest, opts ...grpc.CallOption) (*AddTransactionResponse, error)
	GetInputs(ctx context.Context, in *GetInputsRequest, opts ...grpc.CallOption) (*GetInputsResponse, error)
	GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*GetBalanceResponse, error)
	GetBlockchain(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*GetBlockchainResponse, error)
	GetOrphanBlocks(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*GetOrphanBlocksResponse, error)
	GetUnspentInputs(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*GetUnspentInputsResponse, error)
	AddPeer(ctx context.Context, in *AddPeerRequest, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetPeers(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*GetPeersResponse, error)
}

type fullNodeServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewFullNodeServiceClient(cc grpc.ClientConnInterface) FullNodeServiceClient {
	return &fullNodeServiceClient{cc: cc}
}

// CallOptions prepends the JSON content subtype to opts.
func CallOptions(opts ...grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CODEC_NAME)}, opts...)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, CallOptions(opts...)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fullNodeServiceClient) AddBlock(ctx context.Context, in *AddBlockRequest, opts ...grpc.CallOption) (*AddBlockResponse, error) {
	return invoke[AddBlockResponse](ctx, c.cc, ADD_BLOCK, in, opts)
}

func (c *fullNodeServiceClient) SyncBlockchain(ctx context.Context, in *SyncBlockchainRequest, opts ...grpc.CallOption) (*SyncBlockchainResponse, error) {
	return invoke[SyncBlockchainResponse](ctx, c.cc, SYNC_BLOCKCHAIN, in, opts)
}

func (c *fullNodeServiceClient) AddTransaction(ctx context.Context, in *AddTransactionRequest, opts ...grpc.CallOption) (*AddTransactionResponse, error) {
	return invoke[AddTransactionResponse](ctx, c.cc, ADD_TRANSACTION, in, opts)
}

func (c *fullNodeServiceClient) GetInputs(ctx context.Context, in *GetInputsRequest, opts ...grpc.CallOption) (*GetInputsResponse, error) {
	return invoke[GetInputsResponse](ctx, c.cc, GET_INPUTS, in, opts)
}

func (c *fullNodeServiceClient) GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*GetBalanceResponse, error) {
	return invoke[GetBalanceResponse](ctx, c.cc, GET_BALANCE, in, opts)
}

func (c *fullNodeServiceClient) GetBlockchain(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*GetBlockchainResponse, error) {
	return invoke[GetBlockchainResponse](ctx, c.cc, GET_BLOCKCHAIN, in, opts)
}

func (c *fullNodeServiceClient) GetOrphanBlocks(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*GetOrphanBlocksResponse, error) {
	return invoke[GetOrphanBlocksResponse](ctx, c.cc, GET_ORPHAN_BLOCKS, in, opts)
}

func (c *fullNodeServiceClient) GetUnspentInputs(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*GetUnspentInputsResponse, error) {
	return invoke[GetUnspentInputsResponse](ctx, c.cc, GET_UNSPENT_INPUTS, in, opts)
}

func (c *fullNodeServiceClient) AddPeer(ctx context.Context, in *AddPeerRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, ADD_PEER, in, opts)
}

func (c *fullNodeServiceClient) GetPeers(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*GetPeersResponse, error) {
	return invoke[GetPeersResponse](ctx, c.cc, GET_PEERS, in, opts)
}

// Dial opens a lazy client connection to a full node. Extra options come
// after the defaults, tests pass a bufconn dialer here.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CODEC_NAME)),
	}, opts...)
	return grpc.NewClient(target, opts...)
}
