package commands

import (
	"errors"
	"strconv"
	"strings"

	"github.com/Luismorlan/pow_ledger/network"
)

const (
	// do nothing operation
	NOOP = iota
	// Initiate a money transfer from wallet
	TRANSFER
	// Print user address
	MY_ADDRESS
	// Connect a full node with ip address and port
	CONNECT
	// Get my own balance
	GET_BALANCE
)

type ClientCommand struct {
	Op   Operation
	Args []string
}

func (c ClientCommand) IsValid() bool {
	switch c.Op {
	case TRANSFER:
		if len(c.Args) != 2 {
			return false
		}
		v, err := strconv.ParseFloat(c.Args[1], 64)
		return err == nil && v > 0
	case MY_ADDRESS, GET_BALANCE:
		return len(c.Args) == 0
	case CONNECT:
		_, ok := peerArg(c.Args)
		return ok
	default:
		return false
	}
}

// Node is the address argument of CONNECT.
func (c ClientCommand) Node() network.Address {
	addr, _ := peerArg(c.Args)
	return addr
}

// Value is the amount argument of TRANSFER.
func (c ClientCommand) Value() float64 {
	if c.Op != TRANSFER || len(c.Args) != 2 {
		return 0
	}
	v, _ := strconv.ParseFloat(c.Args[1], 64)
	return v
}

func CreateClientCommand(s string) (ClientCommand, error) {
	// split command by space.
	ss := strings.Fields(s)
	if len(ss) == 0 {
		return ClientCommand{}, errors.New("command is empty")
	}
	cmd := ClientCommand{}
	switch ss[0] {
	case "transfer":
		cmd.Op = TRANSFER
	case "my_address":
		cmd.Op = MY_ADDRESS
	case "connect":
		cmd.Op = CONNECT
	case "get_balance":
		cmd.Op = GET_BALANCE
	default:
		cmd.Op = NOOP
	}
	cmd.Args = ss[1:]
	if !cmd.IsValid() {
		return ClientCommand{}, errors.New("invalid command")
	}
	return cmd, nil
}
