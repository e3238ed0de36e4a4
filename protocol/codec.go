package protocol

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// MaxBlockSize bounds any single wire buffer's body size (post-checksum,
// pre-decode). Buffers larger than this are rejected before they are even
// parsed.
const MaxBlockSize = 4 * 1024 * 1024

const checksumLen = 4

// Frame encodes msg as [kind byte][rlp body][4-byte checksum], the shape
// every inbound buffer must match. The checksum covers the kind byte and
// body so a bit-flip anywhere is caught before parsing.
func Frame(msg Message) ([]byte, error) {
	body, err := rlp.EncodeToBytes(msg)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBlockSize {
		return nil, Errorf(EBLOCKSIZE, "encoded message exceeds %d bytes", MaxBlockSize)
	}
	buf := make([]byte, 1+len(body)+checksumLen)
	buf[0] = byte(msg.Kind())
	copy(buf[1:], body)
	sum := checksum(buf[:1+len(body)])
	copy(buf[1+len(body):], sum[:])
	return buf, nil
}

func checksum(b []byte) [checksumLen]byte {
	h := crypto.Keccak256(b)
	var out [checksumLen]byte
	copy(out[:], h[:checksumLen])
	return out
}

// Parse validates the checksum and size of buf, then decodes it into the
// concrete Message its kind byte names.
func Parse(buf []byte) (Message, error) {
	if len(buf) < 1+checksumLen {
		return nil, Errorf(ECHECKSUM, "buffer too short to carry a checksum")
	}
	if len(buf) > MaxBlockSize+1+checksumLen {
		return nil, Errorf(EBLOCKSIZE, "buffer exceeds %d bytes", MaxBlockSize)
	}
	payload := buf[:len(buf)-checksumLen]
	want := checksum(payload)
	var got [checksumLen]byte
	copy(got[:], buf[len(buf)-checksumLen:])
	if want != got {
		return nil, Errorf(ECHECKSUM, "checksum mismatch")
	}
	kind := Kind(payload[0])
	body := payload[1:]
	msg, err := newZeroValue(kind)
	if err != nil {
		return nil, err
	}
	if err := rlp.DecodeBytes(body, msg); err != nil {
		return nil, Errorf(ECHECKSUM, "malformed body for %s: %v", kind, err)
	}
	return derefMessage(msg), nil
}

func newZeroValue(kind Kind) (any, error) {
	switch kind {
	case KindInit:
		return new(InitMsg), nil
	case KindPing:
		return new(PingMsg), nil
	case KindPong:
		return new(PongMsg), nil
	case KindProbeReq:
		return new(ProbereqMsg), nil
	case KindProbeRep:
		return new(ProberepMsg), nil
	case KindBatchReq:
		return new(BatchreqMsg), nil
	case KindBatchRep:
		return new(BatchrepMsg), nil
	case KindBlockReq:
		return new(BlockreqMsg), nil
	case KindBlockRep:
		return new(BlockrepMsg), nil
	case KindAppend:
		return new(AppendMsg), nil
	case KindFork:
		return new(ForkMsg), nil
	case KindSignedPinRollback:
		return new(SignedPinRollbackMsg), nil
	case KindTxNotify:
		return new(TxnotifyMsg), nil
	case KindTxReq:
		return new(TxreqMsg), nil
	case KindTxRep:
		return new(TxrepMsg), nil
	case KindLeader:
		return new(LeaderMsg), nil
	default:
		return nil, Errorf(ECHECKSUM, "unknown message kind %d", kind)
	}
}

func derefMessage(v any) Message {
	switch m := v.(type) {
	case *InitMsg:
		return *m
	case *PingMsg:
		return *m
	case *PongMsg:
		return *m
	case *ProbereqMsg:
		return *m
	case *ProberepMsg:
		return *m
	case *BatchreqMsg:
		return *m
	case *BatchrepMsg:
		return *m
	case *BlockreqMsg:
		return *m
	case *BlockrepMsg:
		return *m
	case *AppendMsg:
		return *m
	case *ForkMsg:
		return *m
	case *SignedPinRollbackMsg:
		return *m
	case *TxnotifyMsg:
		return *m
	case *TxreqMsg:
		return *m
	case *TxrepMsg:
		return *m
	case *LeaderMsg:
		return *m
	default:
		panic("unreachable message type")
	}
}

// NextNonce derives the next outgoing correlation nonce from the last one
// used on a connection; nonces only need to be unpredictable enough to
// reject stale/duplicate replies, not cryptographically secure.
func NextNonce(last uint64) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], last)
	h := crypto.Keccak256(buf[:])
	return binary.BigEndian.Uint64(h[:8])
}
