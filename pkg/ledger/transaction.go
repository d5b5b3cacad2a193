package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ArgKind identifies what a command argument refers to.
type ArgKind string

const (
	ArgGas    ArgKind = "gas"    // the sender's gas coin
	ArgPure   ArgKind = "pure"   // inline value
	ArgObject ArgKind = "object" // existing object by id
	ArgResult ArgKind = "result" // output of an earlier command
)

type Argument struct {
	Kind     ArgKind `json:"kind"`
	Type     string  `json:"type,omitempty"` // pure only: "string", "u64"
	Value    string  `json:"value,omitempty"`
	ObjectID string  `json:"object_id,omitempty"`
	Index    int     `json:"index,omitempty"`
}

func Gas() Argument                { return Argument{Kind: ArgGas} }
func PureString(s string) Argument { return Argument{Kind: ArgPure, Type: "string", Value: s} }
func Object(id string) Argument    { return Argument{Kind: ArgObject, ObjectID: id} }
func Result(index int) Argument    { return Argument{Kind: ArgResult, Index: index} }

func PureU64(v uint64) Argument {
	return Argument{Kind: ArgPure, Type: "u64", Value: strconv.FormatUint(v, 10)}
}

// U64 decodes a pure u64 argument.
func (a Argument) U64() (uint64, error) {
	return strconv.ParseUint(a.Value, 10, 64)
}

// MoveCall invokes Package::Module::Function.
type MoveCall struct {
	Package   string     `json:"package"`
	Module    string     `json:"module"`
	Function  string     `json:"function"`
	Arguments []Argument `json:"arguments"`
}

func (m MoveCall) Target() string {
	return fmt.Sprintf("%s::%s::%s", m.Package, m.Module, m.Function)
}

// SplitCoins carves the given amounts out of Coin; each amount becomes a result.
type SplitCoins struct {
	Coin    Argument   `json:"coin"`
	Amounts []Argument `json:"amounts"`
}

// Command is one step of a programmable transaction. Exactly one field is set.
type Command struct {
	MoveCall   *MoveCall   `json:"move_call,omitempty"`
	SplitCoins *SplitCoins `json:"split_coins,omitempty"`
}

// Transaction is the unsigned payload handed to the signer.
type Transaction struct {
	Sender    string    `json:"sender"`
	GasBudget uint64    `json:"gas_budget,omitempty"`
	Commands  []Command `json:"commands"`
}

// Serialize converts the transaction to the bytes that get signed and submitted.
func (tx *Transaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// DeserializeTransaction parses bytes produced by Serialize.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// Validate performs structural checks only; the ledger decides the rest.
func (tx *Transaction) Validate() error {
	if tx.Sender == "" {
		return fmt.Errorf("sender is required")
	}
	if len(tx.Commands) == 0 {
		return fmt.Errorf("transaction has no commands")
	}
	for i, cmd := range tx.Commands {
		switch {
		case cmd.MoveCall != nil && cmd.SplitCoins != nil:
			return fmt.Errorf("command %d sets both move_call and split_coins", i)
		case cmd.MoveCall != nil:
			if cmd.MoveCall.Package == "" || cmd.MoveCall.Module == "" || cmd.MoveCall.Function == "" {
				return fmt.Errorf("command %d: incomplete target %q", i, cmd.MoveCall.Target())
			}
			for _, arg := range cmd.MoveCall.Arguments {
				if arg.Kind == ArgResult && arg.Index >= i {
					return fmt.Errorf("command %d references result %d before it exists", i, arg.Index)
				}
			}
		case cmd.SplitCoins != nil:
			if len(cmd.SplitCoins.Amounts) == 0 {
				return fmt.Errorf("command %d: split with no amounts", i)
			}
		default:
			return fmt.Errorf("command %d is empty", i)
		}
	}
	return nil
}
