// Package api serves the JSON HTTP interface wallets and scripts use to talk
// to a full node.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Luismorlan/pow_ledger/logger"
	"github.com/Luismorlan/pow_ledger/model"
	"github.com/Luismorlan/pow_ledger/utils"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Node is the read side of the chain manager.
type Node interface {
	GetChain() []model.Block
	ListOrphans() []model.Block
	GetBalance(address string) float64
	GetUnspent() map[string][]model.Output
	SelectInputs(address string, amount float64) ([]model.Output, *model.Output, error)
}

// Gossip accepts transactions and knows the peers.
type Gossip interface {
	SubmitTransaction(tx *model.Transaction, publicKey []byte) error
	PeerAddresses() []string
}

type handler struct {
	node   Node
	gossip Gossip
	log    *zap.Logger
}

type addTransactionRequest struct {
	Transaction *model.Transaction `json:"transaction" binding:"required"`
	PublicKey   string             `json:"public_key" binding:"required"`
}

type getInputsRequest struct {
	Address string  `json:"address" binding:"required"`
	Amount  float64 `json:"amount"`
}

type getBalanceRequest struct {
	Address string `json:"address" binding:"required"`
}

// NewRouter wires every route. gatherer backs /metrics and may be nil.
func NewRouter(node Node, gossip Gossip, gatherer prometheus.Gatherer, l *zap.Logger) *gin.Engine {
	h := &handler{node: node, gossip: gossip, log: logger.Module(l, "api")}
	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "The node is active.\n")
	})
	r.GET("/get_blockchain", h.getBlockchain)
	r.GET("/get_orphan_blocks", h.getOrphanBlocks)
	r.GET("/get_unspent_inputs", h.getUnspentInputs)
	r.GET("/nodes", h.getNodes)
	r.POST("/add_transaction", h.addTransaction)
	r.POST("/get_inputs", h.getInputs)
	r.POST("/get_balance", h.getBalance)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (h *handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= 400 {
			h.log.Warn("HTTP request", fields...)
			return
		}
		h.log.Debug("HTTP request", fields...)
	}
}

// Client errors are 400, requests that are well formed but cannot be served
// with the current ledger are 422.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrMalformedRequest), errors.Is(err, model.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientFunds), errors.Is(err, model.ErrDoubleSpend):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(statusOf(err), gin.H{"message": err.Error()})
}

func (h *handler) getBlockchain(c *gin.Context) {
	c.JSON(http.StatusOK, h.node.GetChain())
}

func (h *handler) getOrphanBlocks(c *gin.Context) {
	c.JSON(http.StatusOK, h.node.ListOrphans())
}

func (h *handler) getUnspentInputs(c *gin.Context) {
	c.JSON(http.StatusOK, h.node.GetUnspent())
}

func (h *handler) getNodes(c *gin.Context) {
	peers := h.gossip.PeerAddresses()
	if peers == nil {
		peers = []string{}
	}
	c.JSON(http.StatusOK, peers)
}

func (h *handler) addTransaction(c *gin.Context) {
	var req addTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.Join(model.ErrMalformedRequest, err))
		return
	}
	pk, err := utils.HexToBytes(req.PublicKey)
	if err != nil {
		h.fail(c, errors.Join(model.ErrMalformedRequest, err))
		return
	}
	if err := h.gossip.SubmitTransaction(req.Transaction, pk); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Transaction will be added to the next block."})
}

func (h *handler) getInputs(c *gin.Context) {
	var req getInputsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.Join(model.ErrMalformedRequest, err))
		return
	}
	inputs, change, err := h.node.SelectInputs(req.Address, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Inputs selected.",
		"inputs":  inputs,
		"change":  change,
	})
}

func (h *handler) getBalance(c *gin.Context) {
	var req getBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.Join(model.ErrMalformedRequest, err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Balance computed.",
		"address": req.Address,
		"balance": h.node.GetBalance(req.Address),
	})
}
