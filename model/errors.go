package model

import "errors"

var (
	// Transaction signature does not cover its id or was made by another key.
	ErrInvalidSignature = errors.New("invalid signature")
	// Input selection could not reach the requested amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// An input is already spent or claimed by another pending transaction.
	ErrDoubleSpend = errors.New("double spend")
	// Block failed a consensus check, never appended.
	ErrInvalidBlock = errors.New("invalid block")
	// Whole chain rejected, local chain untouched.
	ErrInvalidChain = errors.New("invalid chain")
	// Remote chain does not share our genesis block.
	ErrForeignChain = errors.New("foreign chain")
	// A peer could not be reached during gossip.
	ErrPeerUnreachable = errors.New("peer unreachable")
	// Request is missing fields or carries nonsense values.
	ErrMalformedRequest = errors.New("malformed request")
	// A mined block whose parent is no longer the tail.
	ErrStaleBlock = errors.New("stale block")
	// Proof of work search hit its nonce cap.
	ErrNonceExhausted = errors.New("failed to find any nonce")
	// Proof of work search interrupted by a control command.
	ErrMiningInterrupted = errors.New("mining interrupted")
)
