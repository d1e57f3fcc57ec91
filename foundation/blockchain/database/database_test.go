package database_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	pkHexKey    = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	otherHexKey = "aed31b6b5a5a3e2a4ea6e5f5e2a1b0d5b5e5c8f6c0a2d3f4e5f6a7b8c9d0e1f2"
)

// =============================================================================

func Test_SignVerify(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}
	other, err := crypto.HexToECDSA(otherHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the other private key: %s", err)
	}

	pkh := signature.HashPubKey(signature.PublicKeyBytes(pk.PublicKey))
	otherPKH := signature.HashPubKey(signature.PublicKeyBytes(other.PublicKey))

	t.Log("Given the need to sign and verify transactions.")
	{
		coinbase, err := database.NewCoinbaseTx(pkh, 100)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a coinbase: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to create a coinbase.", success)

		prevTXs := map[string]database.Tx{coinbase.IDHex(): coinbase}

		tx := database.Tx{
			Inputs: []database.TxInput{
				{TxID: coinbase.ID, OutIdx: 0, PubKey: signature.PublicKeyBytes(pk.PublicKey)},
			},
			Outputs: []database.TxOutput{
				{Amount: 40, PubKeyHash: otherPKH},
				{Amount: 60, PubKeyHash: pkh},
			},
		}
		if err := tx.SetID(); err != nil {
			t.Fatalf("\t%s\tShould be able to set the id: %s", failed, err)
		}

		if err := tx.Sign(pk, prevTXs); err != nil {
			t.Fatalf("\t%s\tShould be able to sign the transaction: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to sign the transaction.", success)

		if !tx.Verify(prevTXs) {
			t.Fatalf("\t%s\tShould be able to verify the transaction.", failed)
		}
		t.Logf("\t%s\tShould be able to verify the transaction.", success)

		data, err := tx.Encode()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to encode the transaction: %s", failed, err)
		}
		decoded, err := database.DecodeTx(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the transaction: %s", failed, err)
		}
		if !decoded.Verify(prevTXs) {
			t.Fatalf("\t%s\tShould be able to verify the decoded transaction.", failed)
		}
		t.Logf("\t%s\tShould be able to verify the decoded transaction.", success)

		tampered := decoded.TrimmedCopy()
		tampered.Inputs[0].Signature = decoded.Inputs[0].Signature
		tampered.Inputs[0].PubKey = decoded.Inputs[0].PubKey
		tampered.Outputs[0].Amount = 99
		if tampered.Verify(prevTXs) {
			t.Fatalf("\t%s\tShould not verify a transaction with a changed amount.", failed)
		}
		t.Logf("\t%s\tShould not verify a transaction with a changed amount.", success)

		stolen := database.Tx{
			Inputs: []database.TxInput{
				{TxID: coinbase.ID, OutIdx: 0, PubKey: signature.PublicKeyBytes(other.PublicKey)},
			},
			Outputs: []database.TxOutput{
				{Amount: 100, PubKeyHash: otherPKH},
			},
		}
		stolen.SetID()
		if err := stolen.Sign(other, prevTXs); err != nil {
			t.Fatalf("\t%s\tShould be able to sign with any key: %s", failed, err)
		}
		if stolen.Verify(prevTXs) {
			t.Fatalf("\t%s\tShould not verify a spend signed by a key that does not own the output.", failed)
		}
		t.Logf("\t%s\tShould not verify a spend signed by a key that does not own the output.", success)
	}
}

func Test_SignVerifyMultipleInputs(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	pubKey := signature.PublicKeyBytes(pk.PublicKey)
	pkh := signature.HashPubKey(pubKey)

	t.Log("Given the need to bind every input signature to the output it spends.")
	{
		cb1, err := database.NewCoinbaseTx(pkh, 100)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a coinbase: %s", failed, err)
		}
		cb2, err := database.NewCoinbaseTx(pkh, 50)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a coinbase: %s", failed, err)
		}

		prevTXs := map[string]database.Tx{cb1.IDHex(): cb1, cb2.IDHex(): cb2}

		tx := database.Tx{
			Inputs: []database.TxInput{
				{TxID: cb1.ID, OutIdx: 0, PubKey: pubKey},
				{TxID: cb2.ID, OutIdx: 0, PubKey: pubKey},
			},
			Outputs: []database.TxOutput{
				{Amount: 150, PubKeyHash: make([]byte, 20)},
			},
		}
		if err := tx.SetID(); err != nil {
			t.Fatalf("\t%s\tShould be able to set the id: %s", failed, err)
		}
		if err := tx.Sign(pk, prevTXs); err != nil {
			t.Fatalf("\t%s\tShould be able to sign both inputs: %s", failed, err)
		}
		if bytes.Equal(tx.Inputs[0].Signature, tx.Inputs[1].Signature) {
			t.Fatalf("\t%s\tShould sign a different digest per input.", failed)
		}
		if !tx.Verify(prevTXs) {
			t.Fatalf("\t%s\tShould be able to verify both inputs.", failed)
		}
		t.Logf("\t%s\tShould be able to sign and verify both inputs.", success)

		for _, prev := range []database.Tx{cb1, cb2} {
			flipped := make(map[string]database.Tx, len(prevTXs))
			for id, ptx := range prevTXs {
				flipped[id] = ptx
			}

			changed := prev
			changed.Outputs = []database.TxOutput{prev.Outputs[0]}
			changed.Outputs[0].PubKeyHash = bytes.Clone(prev.Outputs[0].PubKeyHash)
			changed.Outputs[0].PubKeyHash[0] ^= 0x01
			flipped[prev.IDHex()] = changed

			if tx.Verify(flipped) {
				t.Fatalf("\t%s\tShould not verify when the owner of tx[%s] changes by one bit.", failed, prev.IDHex())
			}
		}
		if !tx.Verify(prevTXs) {
			t.Fatalf("\t%s\tShould leave the prior transactions untouched.", failed)
		}
		t.Logf("\t%s\tShould not verify when the owner of any spent output changes by one bit.", success)

		swapped := tx
		swapped.Inputs = append([]database.TxInput(nil), tx.Inputs...)
		swapped.Inputs[0].Signature, swapped.Inputs[1].Signature = tx.Inputs[1].Signature, tx.Inputs[0].Signature
		if swapped.Verify(prevTXs) {
			t.Fatalf("\t%s\tShould not verify with the input signatures swapped.", failed)
		}
		t.Logf("\t%s\tShould not verify with the input signatures swapped.", success)
	}
}

func Test_UnknownPrior(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	tx := database.Tx{
		Inputs: []database.TxInput{
			{TxID: []byte{1, 2, 3}, OutIdx: 0, PubKey: signature.PublicKeyBytes(pk.PublicKey)},
		},
		Outputs: []database.TxOutput{{Amount: 1, PubKeyHash: make([]byte, 20)}},
	}
	tx.SetID()

	if err := tx.Sign(pk, map[string]database.Tx{}); !errors.Is(err, database.ErrUnknownPriorTransaction) {
		t.Fatalf("Should get ErrUnknownPriorTransaction, got %v", err)
	}

	if tx.Verify(map[string]database.Tx{}) {
		t.Fatalf("Should not verify when the prior transaction is missing.")
	}
}

func Test_Coinbase(t *testing.T) {
	pkh := bytes.Repeat([]byte{7}, 20)

	cb1, err := database.NewCoinbaseTx(pkh, 100)
	if err != nil {
		t.Fatalf("Should be able to create a coinbase: %s", err)
	}
	cb2, err := database.NewCoinbaseTx(pkh, 100)
	if err != nil {
		t.Fatalf("Should be able to create a coinbase: %s", err)
	}

	if !cb1.IsCoinbase() {
		t.Fatalf("Should recognize a coinbase.")
	}

	if bytes.Equal(cb1.ID, cb2.ID) {
		t.Fatalf("Should give two coinbases to the same address different ids.")
	}

	if !cb1.Verify(nil) {
		t.Fatalf("Should always verify a coinbase.")
	}

	if cb1.Outputs[0].Amount != 100 || !cb1.Outputs[0].IsLockedWithKey(pkh) {
		t.Fatalf("Should pay the reward to the pub-key-hash.")
	}
}

func Test_SetIDIgnoresID(t *testing.T) {
	tx := database.Tx{
		Outputs: []database.TxOutput{{Amount: 5, PubKeyHash: []byte{1}}},
	}
	tx.SetID()
	first := bytes.Clone(tx.ID)

	tx.SetID()
	if !bytes.Equal(first, tx.ID) {
		t.Fatalf("Should compute the same id with the id field populated.")
	}
}

func Test_BlockPOW(t *testing.T) {
	const difficulty = 8

	cb, err := database.NewCoinbaseTx(bytes.Repeat([]byte{1}, 20), 100)
	if err != nil {
		t.Fatalf("Should be able to create a coinbase: %s", err)
	}

	t.Log("Given the need to mine and validate blocks.")
	{
		genesis, err := database.POW(context.Background(), database.POWArgs{
			Transactions: []database.Tx{cb},
			Difficulty:   difficulty,
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine the genesis block: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine the genesis block.", success)

		if !genesis.IsGenesis() || genesis.Height != 0 {
			t.Fatalf("\t%s\tShould have an empty prev hash and height 0.", failed)
		}

		if err := genesis.ValidatePOW(difficulty); err != nil {
			t.Fatalf("\t%s\tShould validate the mined block: %s", failed, err)
		}
		t.Logf("\t%s\tShould validate the mined block.", success)

		data, err := genesis.Encode()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to encode the block: %s", failed, err)
		}
		decoded, err := database.DecodeBlock(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the block: %s", failed, err)
		}
		if err := decoded.ValidatePOW(difficulty); err != nil {
			t.Fatalf("\t%s\tShould validate the decoded block: %s", failed, err)
		}
		if !decoded.IsGenesis() {
			t.Fatalf("\t%s\tShould keep the decoded block as genesis.", failed)
		}
		t.Logf("\t%s\tShould validate the decoded block.", success)

		decoded.Nonce++
		for decoded.ValidatePOW(difficulty) == nil {
			decoded.Nonce++
		}
		if err := decoded.ValidatePOW(difficulty); !errors.Is(err, database.ErrInvalidPOW) {
			t.Fatalf("\t%s\tShould reject a block with a bad nonce, got %v", failed, err)
		}

		forged := genesis
		forged.Hash = bytes.Repeat([]byte{0}, 32)
		if err := forged.ValidatePOW(difficulty); !errors.Is(err, database.ErrInvalidPOW) {
			t.Fatalf("\t%s\tShould reject a block whose hash is not the digest, got %v", failed, err)
		}
		t.Logf("\t%s\tShould reject tampered blocks.", success)
	}
}

func Test_Keys(t *testing.T) {
	id := []byte{0xde, 0xad, 0xbe, 0xef}

	key := database.UTXOKey(id)
	if string(key) != "utxo-deadbeef" {
		t.Fatalf("Should build the utxo key, got %s", key)
	}

	got, err := database.TxIDFromUTXOKey(key)
	if err != nil || !bytes.Equal(got, id) {
		t.Fatalf("Should get the tx id back from the key, got %x %v", got, err)
	}

	if string(database.BlockKey(id)) != "deadbeef" {
		t.Fatalf("Should hex encode the block key.")
	}

	if _, err := database.TxIDFromUTXOKey([]byte("lsh")); err == nil {
		t.Fatalf("Should reject a key without the utxo prefix.")
	}
}
