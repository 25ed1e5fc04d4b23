// Package api serves the node's block weight multiplier over HTTP.
package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bipbbb/core"
	"bipbbb/core/blockweight"
	"bipbbb/core/storage"
)

// Chain is the part of the chain index the handlers read.
type Chain interface {
	Tip() *core.BlockNode
	NodeByHash(hash chainhash.Hash) *core.BlockNode
	FetchBlock(hash *chainhash.Hash) (*wire.MsgBlock, error)
}

// Multiplier reads the current block weight multiplier.
type Multiplier interface {
	Multiplier() uint32
	Params() blockweight.Params
}

// Handler contains the HTTP handlers of the read API.
type Handler struct {
	chain  Chain
	engine Multiplier
	log    *zap.Logger
}

// NewHandler returns handlers reading from chain and engine.
func NewHandler(chain Chain, engine Multiplier, log *zap.Logger) *Handler {
	return &Handler{chain: chain, engine: engine, log: log}
}

type multiplierResponse struct {
	Multiplier         uint32 `json:"multiplier"`
	TipHeight          uint64 `json:"tipHeight"`
	TipHash            string `json:"tipHash"`
	Interval           uint64 `json:"interval"`
	NextRetargetHeight uint64 `json:"nextRetargetHeight"`
}

type voteResponse struct {
	Vote   uint32 `json:"vote"`
	Height uint64 `json:"height,omitempty"`
	Hash   string `json:"hash,omitempty"`
}

// GetMultiplier handles GET /v1/multiplier.
func (h *Handler) GetMultiplier(w http.ResponseWriter, r *http.Request) {
	tip := h.chain.Tip()
	interval := h.engine.Params().Interval

	writeJSON(w, http.StatusOK, multiplierResponse{
		Multiplier:         h.engine.Multiplier(),
		TipHeight:          tip.Height(),
		TipHash:            tip.Hash().String(),
		Interval:           interval,
		NextRetargetHeight: ((tip.Height()+1)/interval+1)*interval - 1,
	})
}

// ParseVote handles GET /v1/vote?coinbase=<hex>[&height=<n>]. With a height
// the script is expected to start with that height's push.
func (h *Handler) ParseVote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	script, err := hex.DecodeString(q.Get("coinbase"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "coinbase must be hex")
		return
	}

	resp := voteResponse{}
	if hs := q.Get("height"); hs != "" {
		height, err := strconv.ParseUint(hs, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid height")
			return
		}
		prefix, err := blockweight.CoinbaseHeightPrefix(height)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		script = bytes.TrimPrefix(script, prefix)
		resp.Height = height
	}

	resp.Vote = blockweight.FindVote(script)
	writeJSON(w, http.StatusOK, resp)
}

// GetBlockVote handles GET /v1/block/{hash}/vote.
func (h *Handler) GetBlockVote(w http.ResponseWriter, r *http.Request) {
	hash, err := chainhash.NewHashFromStr(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block hash")
		return
	}

	node := h.chain.NodeByHash(*hash)
	if node == nil {
		writeError(w, http.StatusNotFound, "block not indexed")
		return
	}

	msg, err := h.chain.FetchBlock(hash)
	if errors.Is(err, storage.ErrBlockNotFound) {
		writeError(w, http.StatusNotFound, "block not stored")
		return
	}
	if err != nil {
		h.log.Error("fetching block", zap.Stringer("hash", hash), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "fetching block failed")
		return
	}

	vote, err := blockweight.BlockVote(msg, node.Height())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, voteResponse{Vote: vote, Height: node.Height(), Hash: hash.String()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
