package server

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID accepts an identifier as either a decimal JSON string or a JSON integer
// and normalizes it to its decimal text. Range checking happens in the
// pipeline; this type only preserves the token.
type ID string

func (i *ID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("empty identifier")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*i = ID(n.String())
	return nil
}

type generateRequest struct {
	ProposalID ID `json:"proposal_id"`
	ProgramID  ID `json:"program_id"`
}

type generatedPublicInputs struct {
	ExpectedProgramID  string `json:"expected_program_id"`
	ExpectedProposalID string `json:"expected_proposal_id"`
	Raw                string `json:"raw"`
}

type generatedProof struct {
	PublicInputs generatedPublicInputs `json:"publicInputs"`
	Proof        string                `json:"proof"`
	VKHash       string                `json:"vkHash"`
}

type generateResponse struct {
	OK    bool           `json:"ok"`
	Proof generatedProof `json:"proof"`
}

type verifyRequest struct {
	ProofBytesBase64   string          `json:"proof_bytes_base64"`
	PublicInputsJSON   json.RawMessage `json:"public_inputs_json"`
	VKHashHex          string          `json:"vk_hash_hex"`
	ExpectedProgramID  ID              `json:"expected_program_id"`
	ExpectedProposalID ID              `json:"expected_proposal_id"`
}

// decodePublicInputs keeps numbers as json.Number so identifier tokens reach
// the canonicalizer byte-exact.
func decodePublicInputs(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

type signerResponse struct {
	Scheme             string `json:"scheme"`
	SignerPubkeyHex    string `json:"signer_pubkey_hex"`
	SignerPubkeyBase58 string `json:"signer_pubkey_base58"`
	VKHashHex          string `json:"vk_hash_hex"`
}
