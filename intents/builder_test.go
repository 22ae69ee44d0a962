package intents

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herelabs/go-near/client"
	"github.com/herelabs/go-near/model/near"
	"github.com/herelabs/go-near/module/signer"
	"github.com/herelabs/go-near/rpc"
)

func testManager(t *testing.T) (*Manager, *signer.Signer) {
	t.Helper()

	key, err := signer.FromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	rpcClient, err := rpc.NewClient(zerolog.Nop(), []string{"http://localhost:3030"})
	require.NoError(t, err)
	account, err := client.NewAccount(zerolog.Nop(), rpcClient, "market-maker.near", key)
	require.NoError(t, err)

	return NewManager(zerolog.Nop(), account, key), key
}

func TestGenerateNonce(t *testing.T) {
	seeded := GenerateNonce("order-41")
	expected := sha256.Sum256([]byte("order-41"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(expected[:]), seeded)
	assert.Equal(t, seeded, GenerateNonce("order-41"))

	random := GenerateNonce("")
	raw, err := base64.StdEncoding.DecodeString(random)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.NotEqual(t, random, GenerateNonce(""))
}

func TestDeadlineFormat(t *testing.T) {
	deadline := Deadline(10 * time.Minute)
	parsed, err := time.Parse(deadlineLayout, deadline)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(10*time.Minute), parsed, 5*time.Second)
}

func TestBuilderAggregatesTakeGive(t *testing.T) {
	m, _ := testManager(t)

	b := m.Take("usdt.tether-token.near", big.NewInt(1_000_000)).
		Give("wrap.near", big.NewInt(250)).
		Take("wrap.near", big.NewInt(250))

	intents := b.Intents()
	require.Len(t, intents, 1)
	diff, ok := intents[0].(*TokenDiff)
	require.True(t, ok)
	// The wrap.near legs cancel out and are dropped.
	assert.Equal(t, map[string]string{"usdt.tether-token.near": "1000000"}, diff.Diff)
}

func TestBuilderMatchedTokenDiff(t *testing.T) {
	m, _ := testManager(t)

	b := m.Take("usdt.tether-token.near", big.NewInt(500)).
		Give("wrap.near", big.NewInt(200))

	matched := b.MatchedTokenDiff()
	assert.Equal(t, map[string]string{
		"usdt.tether-token.near": "-500",
		"wrap.near":              "200",
	}, matched.Diff)
}

func TestBuilderQuoteDefaults(t *testing.T) {
	m, _ := testManager(t)

	quote, err := m.Transfer("alice.near", map[string]string{"wrap.near": "100"}, "").
		WithSeed("batch-7").
		Quote()
	require.NoError(t, err)

	assert.Equal(t, "market-maker.near", quote.SignerID)
	assert.Equal(t, DefaultContract, quote.VerifyingContract)
	assert.Equal(t, GenerateNonce("batch-7"), quote.Nonce)

	deadline, err := time.Parse(deadlineLayout, quote.Deadline)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(defaultDeadline), deadline, 5*time.Second)
}

func TestBuilderMtWithdrawTightensDeadline(t *testing.T) {
	m, _ := testManager(t)

	quote, err := m.MtWithdraw("", "alice.near", []string{"nft-1"}, []string{"1"}, "").Quote()
	require.NoError(t, err)

	deadline, err := time.Parse(deadlineLayout, quote.Deadline)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(mtWithdrawDeadline), deadline, 5*time.Second)

	mt, ok := quote.Intents[0].(*MtWithdraw)
	require.True(t, ok)
	assert.Equal(t, defaultMtToken, mt.Token)
}

func TestBuilderEmptyFails(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.Intent().Sign()
	require.Error(t, err)
}

func TestSignProducesVerifiableCommitment(t *testing.T) {
	m, key := testManager(t)

	commitment, err := m.Give("wrap.near", big.NewInt(42)).
		Take("usdt.tether-token.near", big.NewInt(13)).
		Sign()
	require.NoError(t, err)

	assert.Equal(t, "raw_ed25519", commitment.Standard)
	assert.Equal(t, key.PublicKey().String(), commitment.PublicKey)

	var quote struct {
		SignerID string `json:"signer_id"`
		Nonce    string `json:"nonce"`
		Intents  []struct {
			Intent string            `json:"intent"`
			Diff   map[string]string `json:"diff"`
		} `json:"intents"`
	}
	require.NoError(t, json.Unmarshal([]byte(commitment.Payload), &quote))
	assert.Equal(t, "market-maker.near", quote.SignerID)
	require.Len(t, quote.Intents, 1)
	assert.Equal(t, "token_diff", quote.Intents[0].Intent)
	assert.Equal(t, map[string]string{
		"wrap.near":              "-42",
		"usdt.tether-token.near": "13",
	}, quote.Intents[0].Diff)

	sig, err := near.ParseSignature(commitment.Signature)
	require.NoError(t, err)
	assert.True(t, key.Verify([]byte(commitment.Payload), sig))
}
