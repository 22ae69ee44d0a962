package near

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herelabs/go-near/model/encoding/borsh"
)

func TestAccessKeyViewFullAccess(t *testing.T) {
	var view AccessKeyView
	require.NoError(t, json.Unmarshal([]byte(`{
		"nonce": 97,
		"block_height": 1000,
		"block_hash": "9Mx8eqL7XU1vXnZ2VtnpoBiNwCALJ7Qw3gkPbMwv1HBp",
		"permission": "FullAccess"
	}`), &view))

	assert.EqualValues(t, 97, view.Nonce)
	assert.EqualValues(t, 1000, view.BlockHeight)
	assert.True(t, view.Permission.FullAccess)
	assert.Nil(t, view.Permission.FunctionCall)
}

func TestAccessKeyViewFunctionCall(t *testing.T) {
	var view AccessKeyView
	require.NoError(t, json.Unmarshal([]byte(`{
		"nonce": 3,
		"permission": {
			"FunctionCall": {
				"allowance": "25000000000000000000000",
				"receiver_id": "dex.near",
				"method_names": ["swap", "view_pool"]
			}
		}
	}`), &view))

	require.NotNil(t, view.Permission.FunctionCall)
	assert.False(t, view.Permission.FullAccess)
	assert.EqualValues(t, "dex.near", view.Permission.FunctionCall.ReceiverID)
	assert.Equal(t, []string{"swap", "view_pool"}, view.Permission.FunctionCall.MethodNames)
	assert.Equal(t, "25000000000000000000000", view.Permission.FunctionCall.Allowance.String())
}

func TestAccessKeyViewUnlimitedAllowance(t *testing.T) {
	var view AccessKeyView
	require.NoError(t, json.Unmarshal([]byte(`{
		"nonce": 1,
		"permission": {"FunctionCall": {"allowance": null, "receiver_id": "dex.near", "method_names": []}}
	}`), &view))

	require.NotNil(t, view.Permission.FunctionCall)
	assert.Nil(t, view.Permission.FunctionCall.Allowance)
}

func TestAccessKeyViewRejectsUnknownPermission(t *testing.T) {
	var view AccessKeyView
	require.Error(t, json.Unmarshal([]byte(`{"nonce": 1, "permission": "ReadOnly"}`), &view))
	require.Error(t, json.Unmarshal([]byte(`{"nonce": 1, "permission": {"Other": {}}}`), &view))
}

func TestAccessKeyBorshLayout(t *testing.T) {
	full := FullAccessKey()
	e := borsh.NewEncoder()
	full.EncodeBorsh(e)
	// Nonce 0 then the full-access discriminant.
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 1}, e.Bytes())

	fc := FunctionCallAccessKey("dex.near", []string{"swap"}, big.NewInt(5))
	e = borsh.NewEncoder()
	fc.EncodeBorsh(e)
	out := e.Bytes()
	// Nonce, function-call discriminant, then Some(allowance).
	assert.Equal(t, byte(0), out[8])
	assert.Equal(t, byte(1), out[9]) // option tag: allowance present
	assert.Equal(t, byte(5), out[10])
}

func TestAccessKeyBorshNoAllowance(t *testing.T) {
	fc := FunctionCallAccessKey("dex.near", nil, nil)
	e := borsh.NewEncoder()
	fc.EncodeBorsh(e)
	out := e.Bytes()
	assert.Equal(t, byte(0), out[8]) // function-call discriminant
	assert.Equal(t, byte(0), out[9]) // option tag: no allowance
}
