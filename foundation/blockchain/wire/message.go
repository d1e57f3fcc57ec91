package wire

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Kind identifies what an inventory or data request refers to.
type Kind uint8

// Set of kinds.
const (
	KindBlock Kind = iota + 1
	KindTx
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindTx:
		return "tx"
	}
	return "unknown"
}

// Message is implemented by every message of the protocol. The set is
// closed, only this package can add a variant.
type Message interface {
	Command() Command
	From() string
	encode(pw *payloadWriter)
}

// decoders selects the decode function for every known command.
var decoders = map[Command]func(pr *payloadReader) Message{
	CmdHeight:    decodeHeight,
	CmdGetBlocks: decodeGetBlocks,
	CmdInv:       decodeInv,
	CmdGetData:   decodeGetData,
	CmdBlock:     decodeBlock,
	CmdTx:        decodeTx,
}

// =============================================================================

// Height announces the height of the sender's chain.
type Height struct {
	AddrFrom string
	Height   uint64
}

// Command implements the Message interface.
func (Height) Command() Command { return CmdHeight }

// From implements the Message interface.
func (m Height) From() string { return m.AddrFrom }

func (m Height) encode(pw *payloadWriter) {
	pw.string(m.AddrFrom)
	pw.uint64(m.Height)
}

func decodeHeight(pr *payloadReader) Message {
	return Height{
		AddrFrom: pr.string(),
		Height:   pr.uint64(),
	}
}

// =============================================================================

// GetBlocks asks for the hashes of every block the receiver holds.
type GetBlocks struct {
	AddrFrom string
}

// Command implements the Message interface.
func (GetBlocks) Command() Command { return CmdGetBlocks }

// From implements the Message interface.
func (m GetBlocks) From() string { return m.AddrFrom }

func (m GetBlocks) encode(pw *payloadWriter) {
	pw.string(m.AddrFrom)
}

func decodeGetBlocks(pr *payloadReader) Message {
	return GetBlocks{
		AddrFrom: pr.string(),
	}
}

// =============================================================================

// Inv advertises a list of block or transaction ids.
type Inv struct {
	AddrFrom string
	Kind     Kind
	IDs      [][]byte
}

// Command implements the Message interface.
func (Inv) Command() Command { return CmdInv }

// From implements the Message interface.
func (m Inv) From() string { return m.AddrFrom }

func (m Inv) encode(pw *payloadWriter) {
	pw.string(m.AddrFrom)
	pw.uint8(uint8(m.Kind))
	pw.list(m.IDs)
}

func decodeInv(pr *payloadReader) Message {
	return Inv{
		AddrFrom: pr.string(),
		Kind:     Kind(pr.uint8()),
		IDs:      pr.list(),
	}
}

// =============================================================================

// GetData requests a single block or transaction by id.
type GetData struct {
	AddrFrom string
	Kind     Kind
	ID       []byte
}

// Command implements the Message interface.
func (GetData) Command() Command { return CmdGetData }

// From implements the Message interface.
func (m GetData) From() string { return m.AddrFrom }

func (m GetData) encode(pw *payloadWriter) {
	pw.string(m.AddrFrom)
	pw.uint8(uint8(m.Kind))
	pw.bytes(m.ID)
}

func decodeGetData(pr *payloadReader) Message {
	return GetData{
		AddrFrom: pr.string(),
		Kind:     Kind(pr.uint8()),
		ID:       pr.bytes(),
	}
}

// =============================================================================

// Block carries a full block in its canonical encoding.
type Block struct {
	AddrFrom string
	Block    database.Block
}

// Command implements the Message interface.
func (Block) Command() Command { return CmdBlock }

// From implements the Message interface.
func (m Block) From() string { return m.AddrFrom }

func (m Block) encode(pw *payloadWriter) {
	pw.string(m.AddrFrom)

	data, err := m.Block.Encode()
	if err != nil {
		pw.fail(err)
		return
	}
	pw.bytes(data)
}

func decodeBlock(pr *payloadReader) Message {
	m := Block{
		AddrFrom: pr.string(),
	}

	data := pr.bytes()
	if pr.err != nil {
		return m
	}

	block, err := database.DecodeBlock(data)
	if err != nil {
		pr.fail(err)
		return m
	}
	m.Block = block

	return m
}

// =============================================================================

// Tx carries a full transaction in its canonical encoding.
type Tx struct {
	AddrFrom string
	Tx       database.Tx
}

// Command implements the Message interface.
func (Tx) Command() Command { return CmdTx }

// From implements the Message interface.
func (m Tx) From() string { return m.AddrFrom }

func (m Tx) encode(pw *payloadWriter) {
	pw.string(m.AddrFrom)

	data, err := m.Tx.Encode()
	if err != nil {
		pw.fail(err)
		return
	}
	pw.bytes(data)
}

func decodeTx(pr *payloadReader) Message {
	m := Tx{
		AddrFrom: pr.string(),
	}

	data := pr.bytes()
	if pr.err != nil {
		return m
	}

	tx, err := database.DecodeTx(data)
	if err != nil {
		pr.fail(err)
		return m
	}
	m.Tx = tx

	return m
}
