package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
)

// genkey prints random secrets for INTERNAL_DISPATCH_SECRET and
// OPERATOR_API_KEY.
func main() {
	n := flag.Int("bytes", 32, "Random bytes per secret")
	flag.Parse()

	internal, err := randomHex(*n)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	operator, err := randomHex(*n)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	fmt.Printf("INTERNAL_DISPATCH_SECRET=%s\nOPERATOR_API_KEY=%s\n", internal, operator)
}

func randomHex(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("at least 16 bytes required, got %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
