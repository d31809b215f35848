package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TimurManjosov/chainrules/internal/rules"
)

// TargetEVM is the account/contract style target.
const TargetEVM = "evm"

const (
	evmBaseGas      = 1_000_000
	evmGasPerLine   = 100
	evmBytecodeStub = "0x608060405234801561001057600080fd5b50"
)

var compoundAdd = regexp.MustCompile(`(\w+) \+= (\w+);`)

// EVMAdapter emits a Solidity contract with one stub function per rule.
type EVMAdapter struct{}

func NewEVMAdapter() *EVMAdapter { return &EVMAdapter{} }

func (*EVMAdapter) Target() string { return TargetEVM }

func (*EVMAdapter) GenerateContract(groups []rules.Group, _ Options) (string, error) {
	var b strings.Builder
	b.WriteString("// SPDX-License-Identifier: MIT\n")
	b.WriteString("pragma solidity ^0.8.20;\n\n")
	b.WriteString("contract InvoiceWalletRules {\n")
	b.WriteString("    // Generated from Business Rule Engine\n\n")

	names := functionNames(groups)
	for _, g := range groups {
		fmt.Fprintf(&b, "    // %s Rules\n", comment(strings.ToUpper(string(g.Category))))
		for _, r := range g.Rules {
			fmt.Fprintf(&b, "    function evaluate_%s(bytes calldata data) internal pure returns (bool) {\n", names[r.ID])
			fmt.Fprintf(&b, "        // %s\n", comment(r.Name))
			fmt.Fprintf(&b, "        // Priority: %d\n", r.Priority)
			for _, c := range r.Conditions {
				fmt.Fprintf(&b, "        // Check: %s %s %s\n", comment(c.Field), comment(string(c.Operator)), formatValue(c.Value))
			}
			b.WriteString("        return true; // Placeholder\n")
			b.WriteString("    }\n\n")
		}
	}

	b.WriteString(`
    // Main evaluation function
    function evaluateInvoice(bytes calldata invoiceData)
        external
        view
        returns (bool compliant, uint8 walletMode)
    {
        // Evaluate all rules
        compliant = evaluateCompliance(invoiceData);
        walletMode = determineWalletMode(invoiceData);
    }
}`)
	return b.String(), nil
}

// Optimize swaps dynamic strings for bytes32 and wraps compound additions in
// unchecked blocks.
func (*EVMAdapter) Optimize(code string) (string, error) {
	code = strings.ReplaceAll(code, "string memory", "bytes32")
	code = compoundAdd.ReplaceAllString(code, "unchecked { $1 += $2; }")
	return code, nil
}

func (*EVMAdapter) BuildArtifacts(code string, opts Options) (Artifacts, error) {
	return Artifacts{
		Chain:            TargetEVM,
		ABI:              evmABI(),
		Bytecode:         evmBytecodeStub,
		GasEstimate:      EstimateGas(code),
		DeploymentScript: evmDeployScript(opts.network()),
	}, nil
}

// EstimateGas is a flat base cost plus a per-line charge.
func EstimateGas(code string) int {
	lines := strings.Count(code, "\n") + 1
	return evmBaseGas + lines*evmGasPerLine
}

func evmABI() []ABIEntry {
	return []ABIEntry{
		{
			Name:            "evaluateCompliance",
			Type:            "function",
			Inputs:          []ABIParam{},
			Outputs:         []ABIParam{{Name: "", Type: "bool"}},
			StateMutability: "view",
		},
		{
			Name:            "evaluateRule",
			Type:            "function",
			Inputs:          []ABIParam{{Name: "ruleId", Type: "uint256"}, {Name: "context", Type: "bytes"}},
			Outputs:         []ABIParam{{Name: "triggered", Type: "bool"}},
			StateMutability: "view",
		},
		{
			Name:            "addRule",
			Type:            "function",
			Inputs:          []ABIParam{{Name: "name", Type: "string"}, {Name: "priority", Type: "uint8"}, {Name: "category", Type: "bytes32"}},
			Outputs:         []ABIParam{{Name: "", Type: "uint256"}},
			StateMutability: "nonpayable",
		},
	}
}

func evmDeployScript(network string) string {
	return fmt.Sprintf(`// Deploy InvoiceWalletRules to %s
import { ethers } from "hardhat";

async function main() {
  const InvoiceWalletRules = await ethers.getContractFactory("InvoiceWalletRules");
  const contract = await InvoiceWalletRules.deploy();
  await contract.deployed();

  console.log("InvoiceWalletRules deployed to:", contract.address);
}

main()
  .then(() => process.exit(0))
  .catch((error) => {
    console.error(error);
    process.exit(1);
  });`, network)
}
