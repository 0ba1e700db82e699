package service

import "github.com/Luismorlan/pow_ledger/model"

type NodeAddr struct {
	IpAddr string `json:"ip_addr"`
	Port   string `json:"port"`
}

type AddBlockRequest struct {
	Block *model.Block `json:"block"`
}

func (r *AddBlockRequest) GetBlock() *model.Block {
	if r == nil {
		return nil
	}
	return r.Block
}

type AddBlockResponse struct {
	// appended, orphaned or known.
	Result string `json:"result"`
}

type SyncBlockchainRequest struct {
	Blockchain []model.Block `json:"blockchain"`
}

type SyncBlockchainResponse struct {
	// replaced or ignored.
	Result string `json:"result"`
}

type AddTransactionRequest struct {
	Transaction *model.Transaction `json:"transaction"`
	// Hex encoded compressed public key of the sender.
	PublicKey string `json:"public_key"`
}

func (r *AddTransactionRequest) GetTransaction() *model.Transaction {
	if r == nil {
		return nil
	}
	return r.Transaction
}

type AddTransactionResponse struct {
	Message string `json:"message"`
}

type GetInputsRequest struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

type GetInputsResponse struct {
	Inputs []model.Output `json:"inputs"`
	// Nil when the inputs add up to the amount exactly.
	Change *model.Output `json:"change"`
}

type GetBalanceRequest struct {
	Address string `json:"address"`
}

type GetBalanceResponse struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

type GetBlockchainResponse struct {
	Blockchain []model.Block `json:"blockchain"`
}

type GetOrphanBlocksResponse struct {
	Orphans []model.Block `json:"orphans"`
}

type GetUnspentInputsResponse struct {
	Unspent map[string][]model.Output `json:"unspent"`
}

type AddPeerRequest struct {
	NodeAddr *NodeAddr `json:"node_addr"`
}

func (r *AddPeerRequest) GetNodeAddr() *NodeAddr {
	if r == nil {
		return nil
	}
	return r.NodeAddr
}

type GetPeersResponse struct {
	Peers []*NodeAddr `json:"peers"`
}
