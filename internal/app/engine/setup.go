package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

const (
	provingKeyFile   = "proving.key"
	verifyingKeyFile = "verifying.key"
	vkHashFile       = "vk_hash.hex"
)

// TrustedSetup is the compiled vote circuit plus its Groth16 keys, held
// server-side the way the wallet service holds its proving key: loaded once,
// read-only for the process lifetime.
type TrustedSetup struct {
	ccs    constraint.ConstraintSystem
	pk     groth16.ProvingKey
	vk     groth16.VerifyingKey
	vkHash [32]byte
}

// LoadOrCreateSetup loads the trusted setup from dir, generating and
// persisting a fresh one when the directory is empty. The persisted vk hash
// is cross-checked against the recomputed hash of the stored verifying key so
// a swapped key file cannot go unnoticed.
func LoadOrCreateSetup(dir string) (*TrustedSetup, error) {
	ccs, err := compileVoteCircuit()
	if err != nil {
		return nil, err
	}

	pkPath := filepath.Join(dir, provingKeyFile)
	vkPath := filepath.Join(dir, verifyingKeyFile)

	if _, err := os.Stat(vkPath); os.IsNotExist(err) {
		return createSetup(dir, ccs)
	}

	pk := groth16.NewProvingKey(ecc.BN254)
	if err := readKey(pkPath, pk); err != nil {
		return nil, fmt.Errorf("load proving key: %w", err)
	}

	vk := groth16.NewVerifyingKey(ecc.BN254)
	if err := readKey(vkPath, vk); err != nil {
		return nil, fmt.Errorf("load verifying key: %w", err)
	}

	vkHash, err := hashVerifyingKey(vk)
	if err != nil {
		return nil, err
	}

	if err := checkStoredHash(filepath.Join(dir, vkHashFile), vkHash); err != nil {
		return nil, err
	}

	return &TrustedSetup{ccs: ccs, pk: pk, vk: vk, vkHash: vkHash}, nil
}

// VKHash is the trusted 32-byte digest the pipeline compares caller-supplied
// vk_hash values against.
func (s *TrustedSetup) VKHash() [32]byte {
	return s.vkHash
}

func compileVoteCircuit() (constraint.ConstraintSystem, error) {
	var circuit VoteCircuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, fmt.Errorf("compile vote circuit: %w", err)
	}
	return ccs, nil
}

func createSetup(dir string, ccs constraint.ConstraintSystem) (*TrustedSetup, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create setup dir: %w", err)
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup: %w", err)
	}

	if err := writeKey(filepath.Join(dir, provingKeyFile), pk); err != nil {
		return nil, fmt.Errorf("persist proving key: %w", err)
	}
	if err := writeKey(filepath.Join(dir, verifyingKeyFile), vk); err != nil {
		return nil, fmt.Errorf("persist verifying key: %w", err)
	}

	vkHash, err := hashVerifyingKey(vk)
	if err != nil {
		return nil, err
	}

	hexHash := hex.EncodeToString(vkHash[:])
	if err := os.WriteFile(filepath.Join(dir, vkHashFile), []byte(hexHash+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("persist vk hash: %w", err)
	}

	return &TrustedSetup{ccs: ccs, pk: pk, vk: vk, vkHash: vkHash}, nil
}

type serializable interface {
	WriteTo(w io.Writer) (int64, error)
	ReadFrom(r io.Reader) (int64, error)
}

func writeKey(path string, key serializable) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := key.WriteTo(f); err != nil {
		return err
	}
	return f.Sync()
}

func readKey(path string, key serializable) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = key.ReadFrom(f)
	return err
}

// hashVerifyingKey identifies the circuit version: sha256 over the gnark
// serialization of the verifying key.
func hashVerifyingKey(vk groth16.VerifyingKey) ([32]byte, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return [32]byte{}, fmt.Errorf("serialize verifying key: %w", err)
	}
	return sha256.Sum256(buf.Bytes()), nil
}

func checkStoredHash(path string, vkHash [32]byte) error {
	stored, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// Hash file missing but keys present: rewrite it from the key.
		hexHash := hex.EncodeToString(vkHash[:])
		return os.WriteFile(path, []byte(hexHash+"\n"), 0o600)
	}
	if err != nil {
		return fmt.Errorf("read stored vk hash: %w", err)
	}

	want := strings.TrimSpace(string(stored))
	got := hex.EncodeToString(vkHash[:])
	if want != got {
		return fmt.Errorf("stored vk hash %s does not match verifying key hash %s", want, got)
	}
	return nil
}
