package full_node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Luismorlan/pow_ledger/commands"
	"github.com/Luismorlan/pow_ledger/config"
	"github.com/Luismorlan/pow_ledger/logger"
	"github.com/Luismorlan/pow_ledger/metrics"
	"github.com/Luismorlan/pow_ledger/miner"
	"github.com/Luismorlan/pow_ledger/model"
	"github.com/Luismorlan/pow_ledger/network"
	"github.com/Luismorlan/pow_ledger/service"
	"github.com/Luismorlan/pow_ledger/utils"
	"github.com/Luismorlan/pow_ledger/visualize"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Dead peer detection: sample every 3 seconds, give up after 3 failures.
const (
	PEER_GC_BASE    = 3 * time.Second
	PEER_GC_RETRIES = 3
)

// This server
type FullNodeServer struct {
	service.UnimplementedFullNodeServiceServer
	// A bunch of peers that we have grpc connection to.
	peers *network.PeerSet
	addr  network.Address

	fullNode *FullNode
	// Set once mining is enabled.
	miner atomic.Pointer[miner.Miner]

	config   config.AppConfig
	dialOpts []grpc.DialOption
	// Collapses concurrent orphan triggered syncs into one.
	syncs singleflight.Group
	// Dead peer detection pace.
	gcBase    time.Duration
	gcRetries int
	// Lifetime of background work: gossip, sync, peer GC.
	ctx     context.Context
	metrics *metrics.Metrics
	log     *zap.Logger
}

type ServerOption func(sev *FullNodeServer)

// WithDialOptions adds options to every peer connection.
func WithDialOptions(opts ...grpc.DialOption) ServerOption {
	return func(sev *FullNodeServer) { sev.dialOpts = append(sev.dialOpts, opts...) }
}

// WithPeerGC sets how often peer connections are sampled and how many failed
// samples in a row drop the peer.
func WithPeerGC(base time.Duration, retries int) ServerOption {
	return func(sev *FullNodeServer) {
		sev.gcBase = base
		sev.gcRetries = retries
	}
}

func WithServerMetrics(m *metrics.Metrics) ServerOption {
	return func(sev *FullNodeServer) { sev.metrics = m }
}

func WithServerLogger(l *zap.Logger) ServerOption {
	return func(sev *FullNodeServer) { sev.log = logger.Module(l, "server") }
}

// Create a new full node server around fullNode, listening at addr. ctx bounds
// every background goroutine the server starts.
func NewFullNodeServer(ctx context.Context, fullNode *FullNode, addr network.Address, opts ...ServerOption) *FullNodeServer {
	sev := &FullNodeServer{
		peers:     network.NewPeerSet(),
		addr:      addr,
		fullNode:  fullNode,
		config:    fullNode.Config(),
		ctx:       ctx,
		gcBase:    PEER_GC_BASE,
		gcRetries: PEER_GC_RETRIES,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(sev)
	}
	fullNode.OnTailChange(sev.onTailChange)
	return sev
}

func (sev *FullNodeServer) FullNode() *FullNode {
	return sev.fullNode
}

func (sev *FullNodeServer) Addr() network.Address {
	return sev.addr
}

// Any tail change invalidates the candidate being mined.
func (sev *FullNodeServer) onTailChange(tail model.Block) {
	m := sev.miner.Load()
	if m != nil && sev.config.REMINE_ON_TAIL_CHANGE && m.IsRunning() {
		sev.log.Debug("tail changed, restarting miner", zap.Int64("index", tail.Index))
		m.Restart()
	}
}

// EnableMining creates the miner paying rewards to address. Blocks it finds
// are gossiped to every peer.
func (sev *FullNodeServer) EnableMining(address string) *miner.Miner {
	m := miner.NewMiner(sev.fullNode, address, sev.config,
		miner.OnMined(sev.broadcastBlock),
		miner.WithMetrics(sev.metrics),
		miner.WithLogger(sev.log))
	sev.miner.Store(m)
	return m
}

func (sev *FullNodeServer) Miner() *miner.Miner {
	return sev.miner.Load()
}

func (sev *FullNodeServer) broadcastBlock(block model.Block) {
	go network.Broadcast(sev.ctx, service.ADD_BLOCK, &service.AddBlockRequest{Block: &block},
		sev.peers.List(), sev.config.BroadcastTimeout(), sev.log, sev.metrics)
}

// Handle the incoming block, this is the external RPC not intended to be
// called by internal functions. Appended blocks are gossiped on; an orphan
// means we are behind, so pull the peers' chains.
func (sev *FullNodeServer) AddBlock(ctx context.Context, req *service.AddBlockRequest) (*service.AddBlockResponse, error) {
	block := req.GetBlock()
	if block == nil {
		return nil, service.ToStatus(fmt.Errorf("%w: block is nil", model.ErrMalformedRequest))
	}
	res, err := sev.fullNode.HandleNewBlock(block, ORIGIN_PEER)
	if err != nil {
		return nil, service.ToStatus(err)
	}
	switch res {
	case APPENDED:
		sev.broadcastBlock(*block)
	case ORPHANED:
		sev.syncInBackground()
	}
	return &service.AddBlockResponse{Result: res.String()}, nil
}

func (sev *FullNodeServer) SyncBlockchain(ctx context.Context, req *service.SyncBlockchainRequest) (*service.SyncBlockchainResponse, error) {
	res, err := sev.fullNode.ReconcileWithRemote(req.Blockchain)
	if err != nil {
		return nil, service.ToStatus(err)
	}
	return &service.SyncBlockchainResponse{Result: res.String()}, nil
}

// Set transaction should add transaction to pool and broad cast to peer.
func (sev *FullNodeServer) AddTransaction(ctx context.Context, req *service.AddTransactionRequest) (*service.AddTransactionResponse, error) {
	tx := req.GetTransaction()
	if tx == nil {
		return nil, service.ToStatus(fmt.Errorf("%w: input transaction is nil", model.ErrMalformedRequest))
	}
	pk, err := utils.HexToBytes(req.PublicKey)
	if err != nil {
		return nil, service.ToStatus(fmt.Errorf("%w: public key is not hex", model.ErrMalformedRequest))
	}
	if err := sev.SubmitTransaction(tx, pk); err != nil {
		return nil, service.ToStatus(err)
	}
	return &service.AddTransactionResponse{Message: "Transaction will be added to the next block."}, nil
}

// SubmitTransaction pools tx locally and gossips it on acceptance.
func (sev *FullNodeServer) SubmitTransaction(tx *model.Transaction, publicKey []byte) error {
	if err := sev.fullNode.SubmitTransaction(tx, publicKey); err != nil {
		return err
	}
	req := &service.AddTransactionRequest{Transaction: tx, PublicKey: utils.BytesToHex(publicKey)}
	go network.Broadcast(sev.ctx, service.ADD_TRANSACTION, req, sev.peers.List(), sev.config.BroadcastTimeout(), sev.log, sev.metrics)
	return nil
}

func (sev *FullNodeServer) GetInputs(ctx context.Context, req *service.GetInputsRequest) (*service.GetInputsResponse, error) {
	inputs, change, err := sev.fullNode.SelectInputs(req.Address, req.Amount)
	if err != nil {
		return nil, service.ToStatus(err)
	}
	return &service.GetInputsResponse{Inputs: inputs, Change: change}, nil
}

func (sev *FullNodeServer) GetBalance(ctx context.Context, req *service.GetBalanceRequest) (*service.GetBalanceResponse, error) {
	return &service.GetBalanceResponse{
		Address: req.Address,
		Balance: sev.fullNode.GetBalance(req.Address),
	}, nil
}

func (sev *FullNodeServer) GetBlockchain(ctx context.Context, _ *emptypb.Empty) (*service.GetBlockchainResponse, error) {
	return &service.GetBlockchainResponse{Blockchain: sev.fullNode.GetChain()}, nil
}

func (sev *FullNodeServer) GetOrphanBlocks(ctx context.Context, _ *emptypb.Empty) (*service.GetOrphanBlocksResponse, error) {
	return &service.GetOrphanBlocksResponse{Orphans: sev.fullNode.ListOrphans()}, nil
}

func (sev *FullNodeServer) GetUnspentInputs(ctx context.Context, _ *emptypb.Empty) (*service.GetUnspentInputsResponse, error) {
	return &service.GetUnspentInputsResponse{Unspent: sev.fullNode.GetUnspent()}, nil
}

// Add a connection to peer, note that this is a best effort 2-way connection.
func (sev *FullNodeServer) AddPeer(ctx context.Context, req *service.AddPeerRequest) (*emptypb.Empty, error) {
	nodeAddr := req.GetNodeAddr()
	if nodeAddr == nil {
		return nil, service.ToStatus(fmt.Errorf("%w: node address is nil", model.ErrMalformedRequest))
	}
	if _, err := sev.AddPeerInternal(network.FromNodeAddr(nodeAddr)); err != nil {
		if errors.Is(err, network.ErrPeerExists) {
			return nil, status.Error(codes.AlreadyExists, err.Error())
		}
		return nil, service.ToStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (sev *FullNodeServer) GetPeers(ctx context.Context, _ *emptypb.Empty) (*service.GetPeersResponse, error) {
	res := &service.GetPeersResponse{}
	for _, addr := range sev.peers.Addresses() {
		res.Peers = append(res.Peers, addr.ToNodeAddr())
	}
	return res, nil
}

// Return all current peers.
func (sev *FullNodeServer) GetAllPeers() []network.Peer {
	return sev.peers.List()
}

func (sev *FullNodeServer) PeerAddresses() []string {
	var res []string
	for _, addr := range sev.peers.Addresses() {
		res = append(res, addr.String())
	}
	return res
}

// AddPeerInternal connects to addr and keeps the connection until it dies.
func (sev *FullNodeServer) AddPeerInternal(addr network.Address) (network.Peer, error) {
	if addr == sev.addr {
		return network.Peer{}, fmt.Errorf("%w: cannot peer with self", model.ErrMalformedRequest)
	}
	if err := addr.Validate(); err != nil {
		return network.Peer{}, fmt.Errorf("%w: invalid peer address %s: %v", model.ErrMalformedRequest, addr, err)
	}
	if sev.peers.Contains(addr) {
		return network.Peer{}, network.ErrPeerExists
	}
	peer, err := network.Dial(addr, sev.dialOpts...)
	if err != nil {
		sev.log.Warn("fail to dial peer", zap.Stringer("peer", addr), zap.Error(err))
		return network.Peer{}, err
	}
	if err := sev.peers.Add(peer); err != nil {
		peer.Conn.Close()
		return network.Peer{}, err
	}
	sev.log.Info("peer added", zap.Stringer("peer", addr))

	// Spin up a process that GC dead connection, in a expo backoff way to
	// avoid overloading any peer.
	go func() {
		if network.WatchConnection(sev.ctx, peer.Conn, sev.gcBase, sev.gcRetries) {
			if sev.peers.RemoveConn(addr, peer.Conn) {
				sev.log.Info("close dead peer", zap.Stringer("peer", addr))
			}
		}
	}()
	return peer, nil
}

// Remove a peer from the peer list and close its connection.
func (sev *FullNodeServer) RemovePeer(addr network.Address) bool {
	return sev.peers.Remove(addr)
}

// Add a mutual connection to a remote full node.
func (sev *FullNodeServer) AddMutualConnection(ctx context.Context, addr network.Address) (network.Peer, error) {
	peer, err := sev.AddPeerInternal(addr)
	if err != nil {
		return network.Peer{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, sev.config.BroadcastTimeout())
	defer cancel()
	_, err = peer.Client.AddPeer(cctx, &service.AddPeerRequest{NodeAddr: sev.addr.ToNodeAddr()})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		// Peer cannot add us back, prune this peer.
		sev.log.Warn("peer refused connection", zap.Stringer("peer", addr), zap.Error(err))
		sev.peers.Remove(addr)
		return network.Peer{}, err
	}
	return peer, nil
}

// Join enters the network through the node at addr: connect both ways, adopt
// its chain if longer, connect to its peers, then offer our chain to
// everyone.
func (sev *FullNodeServer) Join(ctx context.Context, addr network.Address) error {
	peer, err := sev.AddMutualConnection(ctx, addr)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, sev.config.BroadcastTimeout())
	defer cancel()
	remote, err := peer.Client.GetPeers(cctx, &emptypb.Empty{})
	if err != nil {
		sev.log.Warn("cannot list remote peers", zap.Stringer("peer", addr), zap.Error(err))
	} else {
		for _, n := range remote.Peers {
			other := network.FromNodeAddr(n)
			if other == sev.addr || sev.peers.Contains(other) {
				continue
			}
			if _, err := sev.AddMutualConnection(ctx, other); err != nil {
				sev.log.Warn("cannot connect to remote peer", zap.Stringer("peer", other), zap.Error(err))
			}
		}
	}

	sev.SyncWithPeers(ctx)
	sev.BroadcastChain(ctx)
	return nil
}

// SyncWithPeers pulls every peer's chain and reconciles with each. Returns
// how many replaced the local chain.
func (sev *FullNodeServer) SyncWithPeers(ctx context.Context) int {
	replaced := 0
	for _, peer := range sev.peers.List() {
		cctx, cancel := context.WithTimeout(ctx, sev.config.BroadcastTimeout())
		res, err := peer.Client.GetBlockchain(cctx, &emptypb.Empty{})
		cancel()
		if err != nil {
			sev.log.Warn("cannot fetch peer chain", zap.Stringer("peer", peer),
				zap.Error(fmt.Errorf("%w: %v", model.ErrPeerUnreachable, err)))
			continue
		}
		r, err := sev.fullNode.ReconcileWithRemote(res.Blockchain)
		if err != nil {
			sev.log.Warn("peer chain rejected", zap.Stringer("peer", peer), zap.Error(err))
			continue
		}
		if r == REPLACED {
			replaced++
		}
	}
	return replaced
}

// syncInBackground starts a sync with every peer unless one is running. The
// result channel is buffered, nobody has to read it.
func (sev *FullNodeServer) syncInBackground() {
	sev.syncs.DoChan("peers", func() (interface{}, error) {
		return sev.SyncWithPeers(sev.ctx), nil
	})
}

// BroadcastChain pushes the local chain to every peer.
func (sev *FullNodeServer) BroadcastChain(ctx context.Context) int {
	chain := sev.fullNode.GetChain()
	if len(chain) == 0 {
		return 0
	}
	return network.Broadcast(ctx, service.SYNC_BLOCKCHAIN, &service.SyncBlockchainRequest{Blockchain: chain},
		sev.peers.List(), sev.config.BroadcastTimeout(), sev.log, sev.metrics)
}

// Show renders the last d blocks and the orphans as a graphviz graph.
func (sev *FullNodeServer) Show(w io.Writer, d int) error {
	return visualize.Render(w, sev.fullNode.GetChain(), sev.fullNode.ListOrphans(), d)
}

// Close drops every peer connection.
func (sev *FullNodeServer) Close() {
	if m := sev.miner.Load(); m != nil {
		m.Stop()
	}
	sev.peers.Close()
}

// HandleCommand runs a console command against the node.
func (sev *FullNodeServer) HandleCommand(ctx context.Context, c commands.Command) error {
	switch c.Op {
	case commands.START, commands.STOP, commands.RESTART:
		m := sev.miner.Load()
		if m == nil {
			return fmt.Errorf("mining is not enabled on this node")
		}
		m.HandleCommand(ctx, c)
	case commands.ADD_PEER:
		_, err := sev.AddMutualConnection(ctx, c.Peer())
		return err
	case commands.REMOVE_PEER:
		if !sev.RemovePeer(c.Peer()) {
			return fmt.Errorf("unknown peer %s", c.Peer())
		}
	case commands.LIST_PEER:
		sev.log.Info("peers", zap.Strings("peers", sev.PeerAddresses()))
	case commands.SYNC:
		replaced := sev.SyncWithPeers(ctx)
		sev.log.Info("sync done", zap.Int("replaced", replaced), zap.Int("length", sev.fullNode.GetHeight()))
	case commands.SHOW:
		d, err := strconv.Atoi(c.Args[0])
		if err != nil {
			return err
		}
		fileName := filepath.Join(os.TempDir(), "chaindata-"+sev.fullNode.GetUuid()+".dot")
		png, err := visualize.RenderFile(fileName, sev.fullNode.GetChain(), sev.fullNode.ListOrphans(), d)
		if err != nil {
			return err
		}
		sev.log.Info("chain rendered", zap.String("file", fileName), zap.String("png", png))
	default:
		return fmt.Errorf("unsupported command %v", c.Op)
	}
	return nil
}
