package near

import (
	"github.com/herelabs/go-near/model/encoding/borsh"
)

// Action is one atomic operation within a transaction. The variants form a
// closed tagged union; the node executes all actions of a transaction as a
// single atomic unit. Actions are immutable once constructed: build them
// through the factory functions below and hand them to the pipeline.
type Action interface {
	borsh.Serializable
	// ActionTag is the enum discriminant in schema declaration order.
	ActionTag() uint8
}

// Action discriminants in schema declaration order. The byte values are part
// of the wire format and must never be reordered.
const (
	actionTagCreateAccount  uint8 = 0
	actionTagDeployContract uint8 = 1
	actionTagFunctionCall   uint8 = 2
	actionTagTransfer       uint8 = 3
	actionTagStake          uint8 = 4
	actionTagAddKey         uint8 = 5
	actionTagDeleteKey      uint8 = 6
	actionTagDeleteAccount  uint8 = 7
	actionTagDelegate       uint8 = 8
)

// CreateAccount creates the receiver account. Carries no payload.
type CreateAccount struct{}

// CreateAccountAction returns an action creating the transaction receiver.
func CreateAccountAction() CreateAccount { return CreateAccount{} }

func (CreateAccount) ActionTag() uint8 { return actionTagCreateAccount }

func (a CreateAccount) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(a.ActionTag())
}

// DeployContract deploys WASM code to the receiver account.
type DeployContract struct {
	Code []byte
}

// DeployContractAction returns an action deploying code to the receiver.
func DeployContractAction(code []byte) DeployContract {
	return DeployContract{Code: code}
}

func (DeployContract) ActionTag() uint8 { return actionTagDeployContract }

func (a DeployContract) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(a.ActionTag())
	e.WriteBytes(a.Code)
}

// FunctionCall invokes a contract method with serialized arguments, a gas
// budget and an optional attached deposit.
type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    Balance
}

// FunctionCallAction returns an action calling method with the given
// pre-serialized args, gas budget and attached deposit.
func FunctionCallAction(method string, args []byte, gas uint64, deposit Balance) FunctionCall {
	return FunctionCall{MethodName: method, Args: args, Gas: gas, Deposit: deposit}
}

func (FunctionCall) ActionTag() uint8 { return actionTagFunctionCall }

func (a FunctionCall) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(a.ActionTag())
	e.WriteString(a.MethodName)
	e.WriteBytes(a.Args)
	e.WriteU64(a.Gas)
	e.WriteU128(a.Deposit)
}

// Transfer moves a deposit of native tokens to the receiver.
type Transfer struct {
	Deposit Balance
}

// TransferAction returns an action transferring amount yoctoNEAR.
func TransferAction(amount Balance) Transfer {
	return Transfer{Deposit: amount}
}

func (Transfer) ActionTag() uint8 { return actionTagTransfer }

func (a Transfer) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(a.ActionTag())
	e.WriteU128(a.Deposit)
}

// Stake locks tokens for validation with the given validator key.
type Stake struct {
	Stake     Balance
	PublicKey PublicKey
}

// StakeAction returns an action staking amount with the validator key pk.
func StakeAction(amount Balance, pk PublicKey) Stake {
	return Stake{Stake: amount, PublicKey: pk}
}

func (Stake) ActionTag() uint8 { return actionTagStake }

func (a Stake) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(a.ActionTag())
	e.WriteU128(a.Stake)
	a.PublicKey.EncodeBorsh(e)
}

// AddKey attaches an access key to the receiver account.
type AddKey struct {
	PublicKey PublicKey
	AccessKey AccessKey
}

// FullAccessKeyAction returns an action adding pk with full access.
func FullAccessKeyAction(pk PublicKey) AddKey {
	return AddKey{PublicKey: pk, AccessKey: FullAccessKey()}
}

// FunctionCallAccessKeyAction returns an action adding pk restricted to the
// named methods on receiver with the given allowance.
func FunctionCallAccessKeyAction(pk PublicKey, receiver AccountID, methodNames []string, allowance Balance) AddKey {
	return AddKey{PublicKey: pk, AccessKey: FunctionCallAccessKey(receiver, methodNames, allowance)}
}

func (AddKey) ActionTag() uint8 { return actionTagAddKey }

func (a AddKey) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(a.ActionTag())
	a.PublicKey.EncodeBorsh(e)
	a.AccessKey.EncodeBorsh(e)
}

// DeleteKey removes an access key from the receiver account.
type DeleteKey struct {
	PublicKey PublicKey
}

// DeleteKeyAction returns an action deleting pk from the receiver.
func DeleteKeyAction(pk PublicKey) DeleteKey {
	return DeleteKey{PublicKey: pk}
}

func (DeleteKey) ActionTag() uint8 { return actionTagDeleteKey }

func (a DeleteKey) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(a.ActionTag())
	a.PublicKey.EncodeBorsh(e)
}

// DeleteAccount deletes the receiver account and sends its remaining balance
// to the beneficiary.
type DeleteAccount struct {
	BeneficiaryID AccountID
}

// DeleteAccountAction returns an action deleting the receiver account.
func DeleteAccountAction(beneficiary AccountID) DeleteAccount {
	return DeleteAccount{BeneficiaryID: beneficiary}
}

func (DeleteAccount) ActionTag() uint8 { return actionTagDeleteAccount }

func (a DeleteAccount) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(a.ActionTag())
	e.WriteString(string(a.BeneficiaryID))
}

// SignedDelegate wraps a delegate action signed by the delegating key so a
// relayer can embed it in its own transaction and pay for execution.
type SignedDelegate struct {
	DelegateAction DelegateAction
	Signature      Signature
}

// SignedDelegateAction pairs a delegate action with the delegator signature.
func SignedDelegateAction(delegate DelegateAction, sig Signature) SignedDelegate {
	return SignedDelegate{DelegateAction: delegate, Signature: sig}
}

func (SignedDelegate) ActionTag() uint8 { return actionTagDelegate }

func (a SignedDelegate) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(a.ActionTag())
	a.DelegateAction.EncodeBorsh(e)
	a.Signature.EncodeBorsh(e)
}
