package commands

import (
	"errors"
	"strconv"
	"strings"

	"github.com/Luismorlan/pow_ledger/network"
)

type Operation int

const (
	DEFAULT = iota
	// Start mining, infinite loop until explicit cancel.
	START
	// Restart mining when new tail replace the tail we mine on.
	RESTART
	// Stop mining completely.
	STOP
	// Add a new peer to this full node.
	ADD_PEER
	// Remove a peer by ip and port.
	REMOVE_PEER
	// List all peers.
	LIST_PEER
	// Show the blockchain.
	SHOW
	// Pull every peer's chain and adopt the longest valid one.
	SYNC
)

// A command contains a operation and many arguments.
type Command struct {
	Op   Operation
	Args []string
}

// peerArg reads "<host> <port>" arguments as a peer address.
func peerArg(args []string) (network.Address, bool) {
	if len(args) != 2 {
		return network.Address{}, false
	}
	addr := network.Address{IpAddr: args[0], Port: args[1]}
	return addr, addr.Validate() == nil
}

// Peer is the address argument of ADD_PEER and REMOVE_PEER.
func (c Command) Peer() network.Address {
	addr, _ := peerArg(c.Args)
	return addr
}

func (c Command) IsValid() bool {
	switch c.Op {
	case START, RESTART, STOP, LIST_PEER, SYNC:
		return len(c.Args) == 0
	case ADD_PEER, REMOVE_PEER:
		_, ok := peerArg(c.Args)
		return ok
	case SHOW:
		if len(c.Args) != 1 {
			return false
		}
		// depth must be a number.
		if _, err := strconv.Atoi(c.Args[0]); err != nil {
			return false
		}
		return true
	default:
		return false
	}
}

// From string, create
func CreateCommand(s string) (Command, error) {
	// split command by space.
	ss := strings.Fields(s)
	if len(ss) == 0 {
		return Command{}, errors.New("command is empty")
	}
	cmd := Command{}
	switch ss[0] {
	case "start":
		cmd.Op = START
	case "restart":
		cmd.Op = RESTART
	case "stop":
		cmd.Op = STOP
	case "add_peer":
		cmd.Op = ADD_PEER
	case "remove_peer":
		cmd.Op = REMOVE_PEER
	case "list_peer":
		cmd.Op = LIST_PEER
	case "show":
		cmd.Op = SHOW
	case "sync":
		cmd.Op = SYNC
	}
	cmd.Args = ss[1:]
	if !cmd.IsValid() {
		return Command{}, errors.New("invalid command")
	}
	return cmd, nil
}

// Create a brand new command with default operation.
func NewDefaultCommand() Command {
	return Command{
		Op: DEFAULT,
	}
}

func (c Command) IsDefault() bool {
	return c.Op == DEFAULT
}
