package compiler

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/TimurManjosov/chainrules/internal/rules"
)

// TargetSolana is the program/instruction style target.
const TargetSolana = "solana"

const (
	programIDPrefix   = "BRE"
	programIDLength   = 39
	programIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// SolanaAdapter emits an Anchor program with one stub function per rule.
type SolanaAdapter struct {
	// NewProgramID generates the program identifier; RandomProgramID when nil.
	NewProgramID func() string
}

func NewSolanaAdapter() *SolanaAdapter { return &SolanaAdapter{} }

func (*SolanaAdapter) Target() string { return TargetSolana }

func (*SolanaAdapter) GenerateContract(groups []rules.Group, _ Options) (string, error) {
	var b strings.Builder
	b.WriteString("use anchor_lang::prelude::*;\n\n")
	b.WriteString("#[program]\n")
	b.WriteString("pub mod invoice_wallet_rules {\n")
	b.WriteString("    use super::*;\n\n")

	names := functionNames(groups)
	for _, g := range groups {
		fmt.Fprintf(&b, "    // %s Rules\n", comment(strings.ToUpper(string(g.Category))))
		for _, r := range g.Rules {
			fmt.Fprintf(&b, "    fn evaluate_%s(data: &Vec<u8>) -> Result<bool> {\n", names[r.ID])
			fmt.Fprintf(&b, "        // %s\n", comment(r.Name))
			fmt.Fprintf(&b, "        // Priority: %d\n", r.Priority)
			for _, c := range r.Conditions {
				fmt.Fprintf(&b, "        // Check: %s %s %s\n", comment(c.Field), comment(string(c.Operator)), formatValue(c.Value))
			}
			b.WriteString("        Ok(true) // Placeholder\n")
			b.WriteString("    }\n\n")
		}
	}

	b.WriteString(`
    // Main evaluation function
    pub fn evaluate_invoice(
        ctx: Context<EvaluateInvoice>,
        invoice_data: Vec<u8>,
    ) -> Result<(bool, u8)> {
        let compliant = evaluate_compliance(&invoice_data)?;
        let wallet_mode = determine_wallet_mode(&invoice_data)?;
        Ok((compliant, wallet_mode))
    }
}`)
	return b.String(), nil
}

// Optimize prepends the borsh serialization import and caps the program's
// compute budget.
func (*SolanaAdapter) Optimize(code string) (string, error) {
	code = "use borsh::{BorshDeserialize, BorshSerialize};\n" + code
	code = strings.Replace(code, "#[program]", "#[program]\n#[compute_budget(200_000)]", 1)
	return code, nil
}

func (a *SolanaAdapter) BuildArtifacts(_ string, opts Options) (Artifacts, error) {
	gen := a.NewProgramID
	if gen == nil {
		gen = RandomProgramID
	}
	return Artifacts{
		Chain:            TargetSolana,
		ProgramID:        gen(),
		IDL:              solanaIDL(),
		DeploymentScript: solanaDeployScript(opts.network()),
	}, nil
}

// RandomProgramID returns "BRE" followed by 39 random upper-case base36 characters.
func RandomProgramID() string {
	var b strings.Builder
	b.WriteString(programIDPrefix)
	limit := big.NewInt(int64(len(programIDAlphabet)))
	for i := 0; i < programIDLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(fmt.Sprintf("program id entropy: %v", err))
		}
		b.WriteByte(programIDAlphabet[n.Int64()])
	}
	return b.String()
}

func solanaIDL() *IDL {
	return &IDL{
		Version: "0.1.0",
		Name:    "invoice_wallet_rules",
		Instructions: []IDLInstruction{
			{
				Name: "initialize",
				Accounts: []IDLAccount{
					{Name: "bre", IsMut: true},
					{Name: "authority", IsMut: true, IsSigner: true},
					{Name: "systemProgram"},
				},
				Args: []IDLArg{},
			},
			{
				Name: "addRule",
				Accounts: []IDLAccount{
					{Name: "bre", IsMut: true},
					{Name: "rule", IsMut: true},
					{Name: "authority", IsMut: true, IsSigner: true},
					{Name: "systemProgram"},
				},
				Args: []IDLArg{
					{Name: "name", Type: "string"},
					{Name: "priority", Type: "u8"},
					{Name: "category", Type: "string"},
				},
			},
		},
	}
}

func solanaDeployScript(network string) string {
	return fmt.Sprintf(`// Deploy InvoiceWalletRules to Solana %s
import * as anchor from "@coral-xyz/anchor";
import { Program } from "@coral-xyz/anchor";
import { InvoiceWalletRules } from "../target/types/invoice_wallet_rules.js";

async function main() {
  const provider = anchor.AnchorProvider.env();
  anchor.setProvider(provider);

  const program = anchor.workspace.InvoiceWalletRules as Program<InvoiceWalletRules>;

  const bre = anchor.web3.Keypair.generate();
  await program.methods
    .initialize()
    .accounts({
      bre: bre.publicKey,
      authority: provider.wallet.publicKey,
      systemProgram: anchor.web3.SystemProgram.programId,
    })
    .signers([bre])
    .rpc();

  console.log("InvoiceWalletRules initialized at:", bre.publicKey.toBase58());
}

main();`, network)
}
