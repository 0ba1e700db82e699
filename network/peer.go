package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sync"
	"time"

	"github.com/Luismorlan/pow_ledger/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

var ErrPeerExists = errors.New("peer already exist")

var portRegex = regexp.MustCompile("^[0-9]{2,5}$")

type Address struct {
	// What ip address peer fullnode is using.
	IpAddr string
	// What TCP Port peer full node is running on.
	Port string
}

func (a Address) String() string {
	return net.JoinHostPort(a.IpAddr, a.Port)
}

func (a Address) ToNodeAddr() *service.NodeAddr {
	return &service.NodeAddr{IpAddr: a.IpAddr, Port: a.Port}
}

func FromNodeAddr(n *service.NodeAddr) Address {
	return Address{IpAddr: n.IpAddr, Port: n.Port}
}

// ParseAddress splits "host:port".
func ParseAddress(s string) (Address, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, err
	}
	return Address{IpAddr: host, Port: port}, nil
}

// Validate checks an address a user or a peer handed us. Hostnames are
// allowed, anything that parses as an ip must be unicast.
func (a Address) Validate() error {
	if a.IpAddr == "" {
		return errors.New("host is empty")
	}
	if !portRegex.MatchString(a.Port) {
		return fmt.Errorf("port %q is not 2 to 5 digits", a.Port)
	}
	if ip := net.ParseIP(a.IpAddr); ip != nil && !(ip.IsGlobalUnicast() || ip.IsLoopback() || ip.IsPrivate()) {
		return fmt.Errorf("%s is not a unicast address", a.IpAddr)
	}
	return nil
}

type Peer struct {
	Addr Address
	// Connection to the peer, owned by the peer set once added.
	Conn   *grpc.ClientConn
	Client service.FullNodeServiceClient
}

// Stringer function of peer.
func (p Peer) String() string {
	return p.Addr.String()
}

// Dial connects lazily to a peer. The address goes to the dialer untouched,
// the system resolver runs at connect time.
func Dial(addr Address, opts ...grpc.DialOption) (Peer, error) {
	conn, err := service.Dial("passthrough:///"+addr.String(), opts...)
	if err != nil {
		return Peer{}, err
	}
	return Peer{
		Addr:   addr,
		Conn:   conn,
		Client: service.NewFullNodeServiceClient(conn),
	}, nil
}

// PeerSet is the registry of known peers, safe for concurrent use.
type PeerSet struct {
	peers []Peer
	// Protects peers addition and deletion.
	pm sync.RWMutex
}

func NewPeerSet() *PeerSet {
	return &PeerSet{}
}

// Add registers p unless a peer with the same address is known.
func (ps *PeerSet) Add(p Peer) error {
	ps.pm.Lock()
	defer ps.pm.Unlock()
	for _, known := range ps.peers {
		if known.Addr == p.Addr {
			return ErrPeerExists
		}
	}
	ps.peers = append(ps.peers, p)
	return nil
}

// Remove a peer from the set and close its connection.
func (ps *PeerSet) Remove(addr Address) bool {
	ps.pm.Lock()
	defer ps.pm.Unlock()
	for i := 0; i < len(ps.peers); i++ {
		if ps.peers[i].Addr == addr {
			if ps.peers[i].Conn != nil {
				ps.peers[i].Conn.Close()
			}
			ps.peers = append(ps.peers[:i:i], ps.peers[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveConn removes the peer at addr only while conn is still its
// connection, so a watcher of a replaced connection cannot drop the new one.
func (ps *PeerSet) RemoveConn(addr Address, conn *grpc.ClientConn) bool {
	ps.pm.Lock()
	defer ps.pm.Unlock()
	for i := 0; i < len(ps.peers); i++ {
		if ps.peers[i].Addr == addr && ps.peers[i].Conn == conn {
			conn.Close()
			ps.peers = append(ps.peers[:i:i], ps.peers[i+1:]...)
			return true
		}
	}
	return false
}

func (ps *PeerSet) Contains(addr Address) bool {
	ps.pm.RLock()
	defer ps.pm.RUnlock()
	for _, p := range ps.peers {
		if p.Addr == addr {
			return true
		}
	}
	return false
}

// Return all current peers.
func (ps *PeerSet) List() []Peer {
	ps.pm.RLock()
	defer ps.pm.RUnlock()
	return append([]Peer(nil), ps.peers...)
}

func (ps *PeerSet) Addresses() []Address {
	ps.pm.RLock()
	defer ps.pm.RUnlock()
	res := make([]Address, 0, len(ps.peers))
	for _, p := range ps.peers {
		res = append(res, p.Addr)
	}
	return res
}

func (ps *PeerSet) Len() int {
	ps.pm.RLock()
	defer ps.pm.RUnlock()
	return len(ps.peers)
}

// Close drops every peer.
func (ps *PeerSet) Close() {
	ps.pm.Lock()
	defer ps.pm.Unlock()
	for _, p := range ps.peers {
		if p.Conn != nil {
			p.Conn.Close()
		}
	}
	ps.peers = nil
}

// WatchConnection blocks until conn looks dead or ctx ends, and reports
// whether it died. The state is sampled every base interval; each failed
// sample doubles the interval and retries failed samples in a row declare the
// connection dead. A healthy sample resets the backoff. A connection closed
// by us is not dead, the watch just ends.
func WatchConnection(ctx context.Context, conn *grpc.ClientConn, base time.Duration, retries int) bool {
	interval := base
	try := 0
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
		switch conn.GetState() {
		case connectivity.Shutdown:
			return false
		case connectivity.TransientFailure:
			try++
			// Exponential backoff for retry.
			interval *= 2
			if try >= retries {
				return true
			}
		case connectivity.Idle:
			// Lazy connections stay idle until used, poke it.
			conn.Connect()
		default:
			// Reset on any successful retry.
			try = 0
			interval = base
		}
	}
}
