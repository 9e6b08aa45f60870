package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// runHashKey reads an API key from the terminal (or --key) and prints its
// bcrypt hash for the auth.api_key_hash config field.
func runHashKey(args []string) error {
	fs := flag.NewFlagSet("hashkey", flag.ContinueOnError)
	key := fs.String("key", "", "API key to hash (omit to read from terminal)")
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	plain := *key
	if plain == "" {
		fmt.Fprint(os.Stderr, "API key: ")
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		plain = string(b)
	}
	if plain == "" {
		return fmt.Errorf("empty key")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), *cost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	fmt.Println(string(hash))
	return nil
}
