// hashpass gera o hash argon2id gravado em tuse1.senha_hash.
package main

import (
	"fmt"
	"os"

	"github.com/rhsenso/erp/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: hashpass <senha> [senha_legada]")
		os.Exit(1)
	}

	if len(os.Args) == 3 {
		ok := auth.VerifyLegacy(os.Args[1], os.Args[2])
		fmt.Printf("senha legada confere: %t\n", ok)
		if !ok {
			os.Exit(2)
		}
	}

	hash, err := auth.Hash(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
