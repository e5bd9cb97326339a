// Command prover is the off-chain admission prover. It runs the guest check
// on a candidate input and, if it passes, prints a seal the chain's
// attestation verifier accepts for challenge_join.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/tolelom/tolchallenge/config"
	"github.com/tolelom/tolchallenge/proof"
	"github.com/tolelom/tolchallenge/wallet"
)

type receipt struct {
	Input   string `json:"input"`
	Seal    string `json:"seal"`
	Digest  string `json:"journal_digest"`
	ImageID string `json:"image_id"`
	Prover  string `json:"prover"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "prover:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	f := pflag.NewFlagSet("prover", pflag.ContinueOnError)
	keyPath := f.String("key", "prover.key", "path to the prover keystore")
	genKey := f.Bool("genkey", false, "generate a new prover key and exit")
	input := f.String("input", "", "decimal input to prove")
	secret := f.String("secret", "12345", "secret value embedded in the guest")
	imageHex := f.String("image-id", "", "guest image id (hex); empty selects the built-in guest")
	if err := f.Parse(args); err != nil {
		return err
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	password := secrets.KeystorePassword

	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			return err
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			return err
		}
		fmt.Printf("Generated prover key. Trust it with proof.prover_keys: %s\n", w.PubKey())
		return nil
	}

	imageID := proof.DefaultImageID
	if *imageHex != "" {
		if imageID, err = proof.DigestFromHex(*imageHex); err != nil {
			return fmt.Errorf("image-id: %w", err)
		}
	}
	want, err := proof.ParseInput(*secret)
	if err != nil {
		return fmt.Errorf("secret: %w", err)
	}
	in, err := proof.ParseInput(*input)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	priv, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	p := proof.NewProver(priv, imageID, want)
	seal, digest, err := p.Prove(in)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(receipt{
		Input:   in.Dec(),
		Seal:    hex.EncodeToString(seal),
		Digest:  digest.Hex(),
		ImageID: imageID.Hex(),
		Prover:  p.PublicKey(),
	})
}
