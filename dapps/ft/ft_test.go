package ft

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herelabs/go-near/client"
	"github.com/herelabs/go-near/module/signer"
	"github.com/herelabs/go-near/rpc"
)

// tokenNode scripts a node hosting one token contract. View calls are routed
// by method name; submitted transactions are captured and answered with the
// scripted execution status.
type tokenNode struct {
	t   *testing.T
	srv *httptest.Server

	views     map[string]string
	txFailure string
	submitted chan []byte
}

func newTokenNode(t *testing.T) *tokenNode {
	t.Helper()
	n := &tokenNode{
		t:         t,
		views:     make(map[string]string),
		submitted: make(chan []byte, 8),
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.srv.Close)
	return n
}

// viewResult renders payload as the byte-array form call_function returns.
func viewResult(payload string) string {
	nums := make([]string, len(payload))
	for i := 0; i < len(payload); i++ {
		nums[i] = fmt.Sprintf("%d", payload[i])
	}
	return fmt.Sprintf(`{"result":[%s],"logs":[],"block_height":1}`, strings.Join(nums, ","))
}

func (n *tokenNode) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	require.NoError(n.t, json.NewDecoder(r.Body).Decode(&req))

	reply := func(result string) {
		fmt.Fprintf(w, `{"id":"dontcare","jsonrpc":"2.0","result":%s}`, result)
	}

	switch req.Method {
	case "status":
		reply(`{"chain_id":"mainnet","sync_info":{"latest_block_hash":"8Hq2Vp7ZxQJ5cW3KdTnYrUuLhNmEoPiSaGfBjDkXsAt1","latest_block_height":50}}`)

	case "query":
		var params struct {
			RequestType string `json:"request_type"`
			MethodName  string `json:"method_name"`
		}
		require.NoError(n.t, json.Unmarshal(req.Params, &params))
		switch params.RequestType {
		case "view_access_key":
			reply(`{"nonce":1,"permission":"FullAccess"}`)
		case "call_function":
			payload, ok := n.views[params.MethodName]
			require.True(n.t, ok, "unscripted view method %q", params.MethodName)
			reply(viewResult(payload))
		default:
			n.t.Fatalf("unexpected query request type %q", params.RequestType)
		}

	case "broadcast_tx_commit":
		var params []string
		require.NoError(n.t, json.Unmarshal(req.Params, &params))
		raw, err := base64.StdEncoding.DecodeString(params[0])
		require.NoError(n.t, err)
		n.submitted <- raw
		status := `{"SuccessValue":""}`
		if n.txFailure != "" {
			status = n.txFailure
		}
		reply(fmt.Sprintf(`{
			"status":%s,
			"transaction":{},
			"transaction_outcome":{"id":"tx","outcome":{"logs":[],"status":{"SuccessValue":""}}},
			"receipts_outcome":[]
		}`, status))

	default:
		n.t.Fatalf("unexpected rpc method %q", req.Method)
	}
}

func newTokenClient(t *testing.T, n *tokenNode) *Client {
	t.Helper()
	s, err := signer.FromSeed(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	rpcClient, err := rpc.NewClient(zerolog.Nop(), []string{n.srv.URL}, rpc.WithBroadcast(false))
	require.NoError(t, err)
	account, err := client.NewAccount(zerolog.Nop(), rpcClient, "holder.near", s)
	require.NoError(t, err)
	return NewClient(zerolog.Nop(), account)
}

// submittedCall extracts method, args and attached deposit from the single
// function call action of a captured transaction.
func submittedCall(t *testing.T, raw []byte) (string, map[string]string, *big.Int) {
	t.Helper()
	body := raw[:len(raw)-65]

	off := 0
	skipString := func() {
		off += 4 + int(binary.LittleEndian.Uint32(body[off:]))
	}
	skipString()    // signer
	off += 33       // public key
	off += 8        // nonce
	skipString()    // receiver
	off += 32       // block hash
	numActions := binary.LittleEndian.Uint32(body[off:])
	require.EqualValues(t, 1, numActions)
	off += 4
	require.EqualValues(t, 2, body[off], "function call action tag")
	off++

	methodLen := binary.LittleEndian.Uint32(body[off:])
	off += 4
	method := string(body[off : off+int(methodLen)])
	off += int(methodLen)
	argsLen := binary.LittleEndian.Uint32(body[off:])
	off += 4
	var args map[string]string
	require.NoError(t, json.Unmarshal(body[off:off+int(argsLen)], &args))
	off += int(argsLen)
	off += 8 // gas

	depositLE := body[off : off+16]
	depositBE := make([]byte, 16)
	for i := range depositLE {
		depositBE[15-i] = depositLE[i]
	}
	return method, args, new(big.Int).SetBytes(depositBE)
}

func TestBalanceOf(t *testing.T) {
	node := newTokenNode(t)
	node.views["ft_balance_of"] = `"2500000"`
	c := newTokenClient(t, node)

	balance, err := c.BalanceOf(context.Background(), USDT.ContractID, "")
	require.NoError(t, err)
	assert.Zero(t, balance.Cmp(big.NewInt(2500000)))
}

func TestBalanceOfUnregistered(t *testing.T) {
	node := newTokenNode(t)
	node.views["ft_balance_of"] = `null`
	c := newTokenClient(t, node)

	balance, err := c.BalanceOf(context.Background(), USDT.ContractID, "stranger.near")
	require.NoError(t, err)
	assert.Zero(t, balance.Sign())
}

func TestMetadata(t *testing.T) {
	node := newTokenNode(t)
	node.views["ft_metadata"] = `{"spec":"ft-1.0.0","name":"Tether USD","symbol":"USDt","decimals":6}`
	c := newTokenClient(t, node)

	meta, err := c.Metadata(context.Background(), USDT.ContractID)
	require.NoError(t, err)
	assert.Equal(t, "USDt", meta.Symbol)
	assert.Equal(t, 6, meta.Decimals)
}

func TestTransferAttachesOneYocto(t *testing.T) {
	node := newTokenNode(t)
	c := newTokenClient(t, node)

	_, err := c.Transfer(context.Background(), USDT.ContractID, "bob.near", big.NewInt(100), "rent", false)
	require.NoError(t, err)

	method, args, deposit := submittedCall(t, <-node.submitted)
	assert.Equal(t, "ft_transfer", method)
	assert.Equal(t, "bob.near", args["receiver_id"])
	assert.Equal(t, "100", args["amount"])
	assert.Equal(t, "rent", args["memo"])
	assert.Zero(t, deposit.Cmp(oneYocto))
}

func TestTransferClassifiesUnregisteredReceiver(t *testing.T) {
	node := newTokenNode(t)
	node.txFailure = `{"Failure":{"ActionError":{"index":0,"kind":{"FunctionCallError":{"ExecutionError":"Smart contract panicked: The account is not registered"}}}}}`
	c := newTokenClient(t, node)

	_, err := c.Transfer(context.Background(), USDT.ContractID, "stranger.near", big.NewInt(1), "", false)
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestTransferClassifiesInsufficientBalance(t *testing.T) {
	node := newTokenNode(t)
	node.txFailure = `{"Failure":{"ActionError":{"index":0,"kind":{"FunctionCallError":{"ExecutionError":"Smart contract panicked: The account doesn't have enough balance"}}}}}`
	c := newTokenClient(t, node)

	_, err := c.Transfer(context.Background(), USDT.ContractID, "bob.near", big.NewInt(1e9), "", false)
	require.ErrorIs(t, err, ErrNotEnoughBalance)
}

func TestTransferForceRegisters(t *testing.T) {
	node := newTokenNode(t)
	node.views["storage_balance_of"] = `null`
	c := newTokenClient(t, node)

	_, err := c.Transfer(context.Background(), USDT.ContractID, "fresh.near", big.NewInt(5), "", true)
	require.NoError(t, err)

	// Registration travels first, then the transfer itself.
	method, args, deposit := submittedCall(t, <-node.submitted)
	assert.Equal(t, "storage_deposit", method)
	assert.Equal(t, "fresh.near", args["account_id"])
	assert.Zero(t, deposit.Cmp(minStorageBalance))

	method, _, _ = submittedCall(t, <-node.submitted)
	assert.Equal(t, "ft_transfer", method)
}

func TestStorageBalanceOf(t *testing.T) {
	node := newTokenNode(t)
	node.views["storage_balance_of"] = `{"total":"1250000000000000000000","available":"0"}`
	c := newTokenClient(t, node)

	balance, err := c.StorageBalanceOf(context.Background(), USDT.ContractID, "")
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.Equal(t, "1250000000000000000000", balance.Total)

	node.views["storage_balance_of"] = `null`
	balance, err = c.StorageBalanceOf(context.Background(), USDT.ContractID, "stranger.near")
	require.NoError(t, err)
	assert.Nil(t, balance)
}
