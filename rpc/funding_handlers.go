package rpc

import (
	"encoding/json"
	"errors"

	"fundvault/core/types"
	"fundvault/crypto"
	"fundvault/native/funding"
	"fundvault/native/pricefeed"
)

type addressParam struct {
	Address string `json:"address"`
}

type indexParam struct {
	Index int `json:"index"`
}

// BalanceResult reports an integer amount as a decimal string to survive
// JSON number precision limits.
type BalanceResult struct {
	Address string `json:"address,omitempty"`
	Amount  string `json:"amount"`
}

// FunderResult reports the contributor at a sequence position.
type FunderResult struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
}

func (s *Server) handleSendTransaction(req *RPCRequest) RPCResponse {
	if len(req.Params) != 1 {
		return errorResponse(req.ID, codeInvalidParams, "expected one transaction parameter")
	}
	tx := new(types.Transaction)
	if err := json.Unmarshal(req.Params[0], tx); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid transaction payload")
	}
	if err := s.node.ApplyTransaction(tx); err != nil {
		return errorResponse(req.ID, rpcErrorCode(err), err.Error())
	}
	return resultResponse(req.ID, "transaction applied")
}

func (s *Server) handleGetAmountFunded(req *RPCRequest) RPCResponse {
	addr, errResp := decodeAddressParam(req)
	if errResp != nil {
		return *errResp
	}
	amount, err := s.node.AmountFunded(addr)
	if err != nil {
		return errorResponse(req.ID, codeServerError, err.Error())
	}
	return resultResponse(req.ID, BalanceResult{
		Address: crypto.NewAddress(crypto.VaultPrefix, addr[:]).String(),
		Amount:  amount.String(),
	})
}

func (s *Server) handleGetFunder(req *RPCRequest) RPCResponse {
	if len(req.Params) != 1 {
		return errorResponse(req.ID, codeInvalidParams, "expected one index parameter")
	}
	var params indexParam
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid index parameter")
	}
	funder, err := s.node.FunderAt(params.Index)
	if err != nil {
		return errorResponse(req.ID, rpcErrorCode(err), err.Error())
	}
	return resultResponse(req.ID, FunderResult{
		Index:   params.Index,
		Address: crypto.NewAddress(crypto.VaultPrefix, funder[:]).String(),
	})
}

func (s *Server) handleGetFunderCount(req *RPCRequest) RPCResponse {
	count, err := s.node.FunderCount()
	if err != nil {
		return errorResponse(req.ID, codeServerError, err.Error())
	}
	return resultResponse(req.ID, count)
}

func (s *Server) handleGetOwner(req *RPCRequest) RPCResponse {
	owner := s.node.Owner()
	return resultResponse(req.ID, crypto.NewAddress(crypto.VaultPrefix, owner[:]).String())
}

func (s *Server) handleGetFeedVersion(req *RPCRequest) RPCResponse {
	version, err := s.node.FeedVersion()
	if err != nil {
		return errorResponse(req.ID, rpcErrorCode(err), err.Error())
	}
	return resultResponse(req.ID, version)
}

func (s *Server) handleGetHeldBalance(req *RPCRequest) RPCResponse {
	balance, err := s.node.HeldBalance()
	if err != nil {
		return errorResponse(req.ID, codeServerError, err.Error())
	}
	return resultResponse(req.ID, BalanceResult{Amount: balance.String()})
}

func (s *Server) handleGetBalance(req *RPCRequest) RPCResponse {
	addr, errResp := decodeAddressParam(req)
	if errResp != nil {
		return *errResp
	}
	balance, err := s.node.BalanceOf(addr)
	if err != nil {
		return errorResponse(req.ID, codeServerError, err.Error())
	}
	return resultResponse(req.ID, BalanceResult{
		Address: crypto.NewAddress(crypto.VaultPrefix, addr[:]).String(),
		Amount:  balance.String(),
	})
}

func (s *Server) handleGetEvents(req *RPCRequest) RPCResponse {
	return resultResponse(req.ID, s.node.Events())
}

func decodeAddressParam(req *RPCRequest) ([20]byte, *RPCResponse) {
	if len(req.Params) != 1 {
		resp := errorResponse(req.ID, codeInvalidParams, "expected one address parameter")
		return [20]byte{}, &resp
	}
	var params addressParam
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		resp := errorResponse(req.ID, codeInvalidParams, "invalid address parameter")
		return [20]byte{}, &resp
	}
	decoded, err := crypto.DecodeAddress(params.Address)
	if err != nil {
		resp := errorResponse(req.ID, codeInvalidParams, "invalid bech32 address")
		return [20]byte{}, &resp
	}
	var addr [20]byte
	copy(addr[:], decoded.Bytes())
	return addr, nil
}

func rpcErrorCode(err error) int {
	switch {
	case errors.Is(err, funding.ErrIndexOutOfRange):
		return codeInvalidParams
	case errors.Is(err, funding.ErrBelowMinimum),
		errors.Is(err, funding.ErrNotOwner),
		errors.Is(err, funding.ErrTransferFailed),
		errors.Is(err, pricefeed.ErrFeedUnavailable):
		return codeServerError
	default:
		return codeServerError
	}
}
