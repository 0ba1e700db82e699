package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/Luismorlan/pow_ledger/client"
	"github.com/Luismorlan/pow_ledger/commands"
	"github.com/Luismorlan/pow_ledger/logger"
	"github.com/Luismorlan/pow_ledger/model"
	"github.com/Luismorlan/pow_ledger/network"
	"github.com/Luismorlan/pow_ledger/utils"
	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var ErrNotConnected = errors.New("wallet is not connected to a full node")

// User signs and sends transactions to network.
type Wallet struct {
	sk      *btcec.PrivateKey
	pk      []byte
	address string
	node    *client.FullNode
	log     *zap.Logger
}

// NewWallet loads the key at keyPath, or creates and stores a new one when
// create is set.
func NewWallet(keyPath string, create bool, l *zap.Logger) (*Wallet, error) {
	sk, err := utils.ParseKeyFile(keyPath, create)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", keyPath, err)
	}
	return FromKey(sk, l), nil
}

func FromKey(sk *btcec.PrivateKey, l *zap.Logger) *Wallet {
	pk := utils.PublicKeyToBytes(sk.PubKey())
	return &Wallet{
		sk:      sk,
		pk:      pk,
		address: utils.PublicKeyToAddress(pk),
		log:     logger.Module(l, "wallet"),
	}
}

func (w *Wallet) Address() string {
	return w.address
}

func (w *Wallet) PublicKeyHex() string {
	return utils.BytesToHex(w.pk)
}

// SetFullNodeConnection points the wallet at the node at addr, dropping any
// previous connection.
func (w *Wallet) SetFullNodeConnection(addr network.Address, opts ...grpc.DialOption) error {
	node, err := client.Dial(addr, opts...)
	if err != nil {
		return err
	}
	w.Close()
	w.node = node
	w.log.Info("connected to full node", zap.Stringer("node", addr))
	return nil
}

func (w *Wallet) Close() {
	if w.node != nil {
		w.node.Close()
		w.node = nil
	}
}

func (w *Wallet) GetBalance(ctx context.Context) (float64, error) {
	if w.node == nil {
		return 0, ErrNotConnected
	}
	return w.node.GetBalance(ctx, w.address)
}

// TransferMoney sends value to receiver. The node picks the inputs, the
// wallet signs and submits.
func (w *Wallet) TransferMoney(ctx context.Context, receiver string, value float64) (*model.Transaction, error) {
	if w.node == nil {
		return nil, ErrNotConnected
	}
	if !utils.IsValidAddress(receiver) {
		return nil, fmt.Errorf("%w: invalid receiver address %q", model.ErrMalformedRequest, receiver)
	}
	if value <= 0 {
		return nil, fmt.Errorf("%w: value must be positive", model.ErrMalformedRequest)
	}
	inputs, change, err := w.node.GetInputs(ctx, w.address, value)
	if err != nil {
		return nil, err
	}
	tx, err := utils.CreatePendingTransaction(w.sk, inputs, change, receiver, value)
	if err != nil {
		return nil, err
	}
	if err := w.node.SubmitTransaction(ctx, tx, w.pk); err != nil {
		return nil, err
	}
	w.log.Info("transaction sent",
		zap.String("tx", tx.Id),
		zap.String("receiver", receiver),
		zap.Float64("value", value))
	return tx, nil
}

// HandleCommand runs a console command and returns what to show the user.
func (w *Wallet) HandleCommand(ctx context.Context, c commands.ClientCommand) (string, error) {
	switch c.Op {
	case commands.TRANSFER:
		value := c.Value()
		tx, err := w.TransferMoney(ctx, c.Args[0], value)
		if err != nil {
			return "", fmt.Errorf("fail to transfer money: %w", err)
		}
		return fmt.Sprintf("successfully sent transaction %s, receiver: %s, value: %f", tx.Id, c.Args[0], value), nil
	case commands.MY_ADDRESS:
		return w.address, nil
	case commands.CONNECT:
		addr := c.Node()
		if err := w.SetFullNodeConnection(addr); err != nil {
			return "", fmt.Errorf("failed to connect to full node endpoint %s: %w", addr, err)
		}
		return "connected full node endpoint " + addr.String(), nil
	case commands.GET_BALANCE:
		v, err := w.GetBalance(ctx)
		if err != nil {
			return "", fmt.Errorf("fail to get balance: %w", err)
		}
		return fmt.Sprintf("your total balance is: %f", v), nil
	default:
		return "", fmt.Errorf("unimplemented command: %d", c.Op)
	}
}
