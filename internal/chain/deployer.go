package chain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/TimurManjosov/chainrules/internal/compiler"
)

// SolanaComputeUnits is reported for every program deployment.
const SolanaComputeUnits = 200_000

// Receipt describes a submitted deployment.
type Receipt struct {
	Chain           string `json:"chain"`
	Address         string `json:"address"`
	TransactionHash string `json:"transactionHash"`
	GasUsed         int    `json:"gasUsed,omitempty"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	ComputeUnits    int    `json:"computeUnits,omitempty"`
	Slot            uint64 `json:"slot,omitempty"`
}

// Deployer submits compiled artifacts to one target.
type Deployer interface {
	Target() string
	Deploy(ctx context.Context, c *compiler.Compiled, opts compiler.Options) (Receipt, error)
}

// EVMDeployer simulates a contract deployment. It synthesizes the contract
// address and transaction hash and charges the compiler's gas estimate.
type EVMDeployer struct{}

func (EVMDeployer) Target() string { return TargetEVM }

func (EVMDeployer) Deploy(ctx context.Context, c *compiler.Compiled, _ compiler.Options) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	addr, err := randomHex(20)
	if err != nil {
		return Receipt{}, err
	}
	tx, err := randomHex(32)
	if err != nil {
		return Receipt{}, err
	}
	block, err := randomUint(1_000_000)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		Chain:           TargetEVM,
		Address:         "0x" + addr,
		TransactionHash: "0x" + tx,
		GasUsed:         c.Artifacts.GasEstimate,
		BlockNumber:     block,
	}, nil
}

// SolanaDeployer simulates a program deployment at the compiler-generated program id.
type SolanaDeployer struct{}

func (SolanaDeployer) Target() string { return TargetSolana }

func (SolanaDeployer) Deploy(ctx context.Context, c *compiler.Compiled, _ compiler.Options) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if c.Artifacts.ProgramID == "" {
		return Receipt{}, fmt.Errorf("solana deploy: compiled artifacts carry no program id")
	}
	sig, err := randomBase58(88)
	if err != nil {
		return Receipt{}, err
	}
	slot, err := randomUint(1_000_000)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		Chain:           TargetSolana,
		Address:         c.Artifacts.ProgramID,
		TransactionHash: sig,
		ComputeUnits:    SolanaComputeUnits,
		Slot:            slot,
	}, nil
}

// DefaultDeployers returns a deployer for every built-in target.
func DefaultDeployers() []Deployer {
	return []Deployer{EVMDeployer{}, SolanaDeployer{}}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func randomUint(limit int64) (uint64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(limit))
	if err != nil {
		return 0, fmt.Errorf("generate random number: %w", err)
	}
	return n.Uint64(), nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func randomBase58(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	limit := big.NewInt(int64(len(base58Alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate signature: %w", err)
		}
		sb.WriteByte(base58Alphabet[idx.Int64()])
	}
	return sb.String(), nil
}
