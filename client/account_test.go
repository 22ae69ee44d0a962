package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/herelabs/go-near/model/near"
	"github.com/herelabs/go-near/module/signer"
	"github.com/herelabs/go-near/rpc"
)

// mockNode scripts just enough of a node to drive the pipeline: access key
// queries seed the nonce coordinator, status feeds the block cache, and
// every broadcast is captured for structural assertions.
type mockNode struct {
	t   *testing.T
	srv *httptest.Server

	chainNonce  *atomic.Uint64
	blockHash   near.BlockHash
	blockHeight uint64

	// rejectNonces makes that many broadcasts fail with an invalid-nonce
	// rejection before submissions succeed again.
	rejectNonces *atomic.Int32

	keyViews  *atomic.Int32
	submitted chan []byte
}

func newMockNode(t *testing.T, chainNonce uint64) *mockNode {
	t.Helper()
	n := &mockNode{
		t:            t,
		chainNonce:   atomic.NewUint64(chainNonce),
		blockHeight:  777,
		rejectNonces: atomic.NewInt32(0),
		keyViews:     atomic.NewInt32(0),
		submitted:    make(chan []byte, 16),
	}
	for i := range n.blockHash {
		n.blockHash[i] = byte(i + 1)
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *mockNode) handle(w http.ResponseWriter, r *http.Request) {
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
		reply(fmt.Sprintf(
			`{"chain_id":"localnet","sync_info":{"latest_block_hash":%q,"latest_block_height":%d}}`,
			n.blockHash.String(), n.blockHeight,
		))

	case "query":
		var params struct {
			RequestType string `json:"request_type"`
			AccountID   string `json:"account_id"`
		}
		require.NoError(n.t, json.Unmarshal(req.Params, &params))
		switch params.RequestType {
		case "view_access_key":
			n.keyViews.Inc()
			reply(fmt.Sprintf(`{"nonce":%d,"permission":"FullAccess","block_height":%d,"block_hash":%q}`,
				n.chainNonce.Load(), n.blockHeight, n.blockHash.String()))
		case "view_account":
			reply(`{"amount":"5000000000000000000000000","locked":"0","storage_usage":500}`)
		default:
			n.t.Fatalf("unexpected query request type %q", params.RequestType)
		}

	case "broadcast_tx_commit":
		var params []string
		require.NoError(n.t, json.Unmarshal(req.Params, &params))
		raw, err := base64.StdEncoding.DecodeString(params[0])
		require.NoError(n.t, err)
		n.submitted <- raw
		reply(`{
			"status":{"SuccessValue":""},
			"transaction":{"nonce":11},
			"transaction_outcome":{"id":"tx","outcome":{"logs":["submitted"],"status":{"SuccessValue":""}}},
			"receipts_outcome":[{"id":"r1","outcome":{"logs":["executed"],"status":{"SuccessValue":""}}}]
		}`)

	case "broadcast_tx_async":
		if n.rejectNonces.Load() > 0 {
			n.rejectNonces.Dec()
			fmt.Fprintf(w, `{"id":"dontcare","jsonrpc":"2.0","error":{
				"cause":{"name":"INVALID_TRANSACTION"},
				"name":"HANDLER_ERROR",
				"data":{"TxExecutionError":{"InvalidTxError":{"InvalidNonce":{"tx_nonce":11,"ak_nonce":%d}}}}
			}}`, n.chainNonce.Load())
			return
		}
		var params []string
		require.NoError(n.t, json.Unmarshal(req.Params, &params))
		raw, err := base64.StdEncoding.DecodeString(params[0])
		require.NoError(n.t, err)
		n.submitted <- raw
		reply(`"6zgh2u9DqHHiXzdy9ouTP7oGky2T4nugqzqt9wJZwNFm"`)

	default:
		n.t.Fatalf("unexpected rpc method %q", req.Method)
	}
}

func newTestAccount(t *testing.T, n *mockNode, id near.AccountID, signers ...*signer.Signer) *Account {
	t.Helper()
	rpcClient, err := rpc.NewClient(zerolog.Nop(), []string{n.srv.URL}, rpc.WithBroadcast(false))
	require.NoError(t, err)
	account, err := NewAccount(zerolog.Nop(), rpcClient, id, signers...)
	require.NoError(t, err)
	return account
}

func seedSigner(t *testing.T, fill byte) *signer.Signer {
	t.Helper()
	s, err := signer.FromSeed(bytes.Repeat([]byte{fill}, 32))
	require.NoError(t, err)
	return s
}

// wireTx is a transfer transaction pulled apart byte by byte.
type wireTx struct {
	signerID   string
	publicKey  []byte
	nonce      uint64
	receiverID string
	blockHash  []byte
	numActions uint32
	rest       []byte

	body      []byte
	signature []byte
}

// decodeSignedTx splits a signed transaction into the unsigned body and the
// trailing signature, then walks the fixed-layout header fields.
func decodeSignedTx(t *testing.T, raw []byte) wireTx {
	t.Helper()
	require.Greater(t, len(raw), 65)
	body := raw[:len(raw)-65]
	require.EqualValues(t, 0, raw[len(raw)-65], "signature key type tag")

	var tx wireTx
	tx.body = body
	tx.signature = raw[len(raw)-64:]

	off := 0
	readString := func() string {
		n := binary.LittleEndian.Uint32(body[off:])
		off += 4
		s := string(body[off : off+int(n)])
		off += int(n)
		return s
	}
	tx.signerID = readString()
	require.EqualValues(t, 0, body[off], "public key type tag")
	off++
	tx.publicKey = body[off : off+32]
	off += 32
	tx.nonce = binary.LittleEndian.Uint64(body[off:])
	off += 8
	tx.receiverID = readString()
	tx.blockHash = body[off : off+32]
	off += 32
	tx.numActions = binary.LittleEndian.Uint32(body[off:])
	off += 4
	tx.rest = body[off:]
	return tx
}

func TestSendMoneyAwait(t *testing.T) {
	node := newMockNode(t, 10)
	s := seedSigner(t, 7)
	account := newTestAccount(t, node, "alice.near", s)

	outcome, err := account.SendMoney(context.Background(), "bob.near", near.Yocto(1000), ModeAwait)
	require.NoError(t, err)

	raw := <-node.submitted
	tx := decodeSignedTx(t, raw)
	pk := s.PublicKey()
	assert.Equal(t, "alice.near", tx.signerID)
	assert.Equal(t, pk.Data[:], tx.publicKey)
	assert.EqualValues(t, 11, tx.nonce)
	assert.Equal(t, "bob.near", tx.receiverID)
	assert.Equal(t, node.blockHash[:], tx.blockHash)
	assert.EqualValues(t, 1, tx.numActions)

	require.Len(t, tx.rest, 17)
	assert.EqualValues(t, 3, tx.rest[0], "transfer action tag")
	assert.EqualValues(t, 1000, binary.LittleEndian.Uint64(tx.rest[1:9]))

	// The signature covers the SHA-256 of the unsigned body.
	bodyHash := sha256.Sum256(tx.body)
	pub := ed25519.PublicKey(tx.publicKey)
	assert.True(t, ed25519.Verify(pub, bodyHash[:], tx.signature))

	assert.Equal(t, base58.Encode(bodyHash[:]), outcome.Hash)
	assert.Equal(t, []string{"submitted", "executed"}, outcome.Logs())
}

func TestSignAndSubmitConsumesSequentialNonces(t *testing.T) {
	node := newMockNode(t, 100)
	account := newTestAccount(t, node, "alice.near", seedSigner(t, 7))

	for i := 0; i < 3; i++ {
		_, err := account.SendMoney(context.Background(), "bob.near", near.Yocto(1), ModeAsync)
		require.NoError(t, err)
	}

	var nonces []uint64
	for i := 0; i < 3; i++ {
		tx := decodeSignedTx(t, <-node.submitted)
		nonces = append(nonces, tx.nonce)
	}
	assert.Equal(t, []uint64{101, 102, 103}, nonces)
	// The chain nonce seeds the shadow once; later reservations are local.
	assert.EqualValues(t, 1, node.keyViews.Load())
}

func TestInvalidNonceResyncsCoordinator(t *testing.T) {
	node := newMockNode(t, 10)
	account := newTestAccount(t, node, "alice.near", seedSigner(t, 7))

	// Seed the nonce shadow with a successful submission.
	_, err := account.SendMoney(context.Background(), "bob.near", near.Yocto(1), ModeAsync)
	require.NoError(t, err)
	tx := decodeSignedTx(t, <-node.submitted)
	require.EqualValues(t, 11, tx.nonce)
	require.EqualValues(t, 1, node.keyViews.Load())

	// Another client advances the key on chain; our next submission is
	// rejected and must trigger a resync against the live access key.
	node.chainNonce.Store(50)
	node.rejectNonces.Store(1)
	_, err = account.SendMoney(context.Background(), "bob.near", near.Yocto(1), ModeAsync)
	require.Error(t, err)
	assert.True(t, rpc.IsInvalidNonce(err))
	assert.EqualValues(t, 2, node.keyViews.Load(), "rejection refreshes the access key view")

	// The shadow fast-forwarded past the chain nonce.
	_, err = account.SendMoney(context.Background(), "bob.near", near.Yocto(1), ModeAsync)
	require.NoError(t, err)
	tx = decodeSignedTx(t, <-node.submitted)
	assert.EqualValues(t, 51, tx.nonce)
	assert.EqualValues(t, 2, node.keyViews.Load())
}

func TestCreateAccountBundlesActions(t *testing.T) {
	node := newMockNode(t, 10)
	account := newTestAccount(t, node, "alice.near", seedSigner(t, 7))

	newKey := seedSigner(t, 9).PublicKey()
	_, err := account.CreateAccount(context.Background(), "sub.alice.near", newKey, near.Yocto(100), ModeAsync)
	require.NoError(t, err)

	tx := decodeSignedTx(t, <-node.submitted)
	assert.Equal(t, "sub.alice.near", tx.receiverID)
	require.EqualValues(t, 3, tx.numActions)

	// CreateAccount carries no payload; AddKey carries key plus a
	// zero-nonce full access key; Transfer carries the amount.
	rest := tx.rest
	assert.EqualValues(t, 0, rest[0], "create account tag")
	rest = rest[1:]
	assert.EqualValues(t, 5, rest[0], "add key tag")
	assert.Equal(t, newKey.Data[:], rest[2:34])
	assert.EqualValues(t, 1, rest[42], "full access permission tag")
	rest = rest[43:]
	assert.EqualValues(t, 3, rest[0], "transfer tag")
	assert.EqualValues(t, 100, binary.LittleEndian.Uint64(rest[1:9]))
}

func TestFunctionCallDefaultsGas(t *testing.T) {
	node := newMockNode(t, 10)
	account := newTestAccount(t, node, "alice.near", seedSigner(t, 7))

	_, err := account.FunctionCall(context.Background(), "token.near", "ft_transfer",
		map[string]string{"receiver_id": "bob.near", "amount": "1"}, 0, nil, ModeAsync)
	require.NoError(t, err)

	tx := decodeSignedTx(t, <-node.submitted)
	require.EqualValues(t, 1, tx.numActions)
	rest := tx.rest
	require.EqualValues(t, 2, rest[0], "function call tag")

	methodLen := binary.LittleEndian.Uint32(rest[1:])
	assert.Equal(t, "ft_transfer", string(rest[5:5+methodLen]))
	off := 5 + int(methodLen)
	argsLen := binary.LittleEndian.Uint32(rest[off:])
	args := rest[off+4 : off+4+int(argsLen)]
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(args, &decoded))
	assert.Equal(t, "bob.near", decoded["receiver_id"])
	off += 4 + int(argsLen)
	assert.Equal(t, DefaultGas, binary.LittleEndian.Uint64(rest[off:]))
}

func TestDelegateActionRoundTrip(t *testing.T) {
	node := newMockNode(t, 40)
	s := seedSigner(t, 7)
	account := newTestAccount(t, node, "alice.near", s)

	delegate, err := account.CreateDelegateAction(context.Background(), "token.near",
		[]near.Action{near.TransferAction(near.Yocto(5))}, "")
	require.NoError(t, err)
	assert.EqualValues(t, "alice.near", delegate.SenderID)
	assert.EqualValues(t, 41, delegate.Nonce)
	assert.EqualValues(t, node.blockHeight+1000, delegate.MaxBlockHeight)

	sig, err := account.SignDelegateAction(delegate)
	require.NoError(t, err)
	hash := delegate.Hash()
	assert.True(t, s.Verify(hash[:], sig))

	relayNode := newMockNode(t, 90)
	relayer := newTestAccount(t, relayNode, "relayer.near", seedSigner(t, 8))
	_, err = relayer.SubmitDelegateAction(context.Background(), *delegate, sig, ModeAsync)
	require.NoError(t, err)

	tx := decodeSignedTx(t, <-relayNode.submitted)
	assert.Equal(t, "relayer.near", tx.signerID)
	assert.Equal(t, "alice.near", tx.receiverID, "outer receiver is the delegating account")
	require.EqualValues(t, 1, tx.numActions)
	assert.EqualValues(t, 8, tx.rest[0], "delegate action tag")
}

func TestSubmitWithoutKeysFails(t *testing.T) {
	node := newMockNode(t, 10)
	account := newTestAccount(t, node, "watcher.near")

	_, err := account.SendMoney(context.Background(), "bob.near", near.Yocto(1), ModeAsync)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signing keys")
}

func TestGetBalance(t *testing.T) {
	node := newMockNode(t, 10)
	account := newTestAccount(t, node, "alice.near", seedSigner(t, 7))

	balance, err := account.GetBalance(context.Background(), "")
	require.NoError(t, err)
	expected, _ := near.ParseBalance("5000000000000000000000000")
	assert.Zero(t, balance.Cmp(expected))
}

func TestNewAccountRejectsInvalidID(t *testing.T) {
	node := newMockNode(t, 10)
	rpcClient, err := rpc.NewClient(zerolog.Nop(), []string{node.srv.URL})
	require.NoError(t, err)
	_, err = NewAccount(zerolog.Nop(), rpcClient, "Invalid..ID")
	require.Error(t, err)
}
