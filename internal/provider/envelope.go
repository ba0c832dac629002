package provider

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
)

// PayloadTypeRecord identifies the envelope payload as a canonically
// encoded Record. Reserved for future payload kinds on the same topic.
const PayloadTypeRecord = "provider-record/v1"

// Envelope is a self-describing, signed wrapper around a Record. Decoding
// does not require out-of-band knowledge of the sender's identity: the
// peer and its public key travel with the envelope and are cross-checked
// against the signature.
type Envelope struct {
	PeerID      peer.ID
	PublicKey   crypto.PubKey
	PayloadType string
	Payload     []byte
	Signature   []byte
}

// canonicalPayload deterministically serializes a Record: equal records
// encode to equal bytes, and any mutation changes the bytes.
func canonicalPayload(r Record) ([]byte, error) {
	return json.Marshal(r)
}

// Sign stamps Now(), canonicalizes subnetIDs into a Record, and produces a
// signed Envelope under priv.
func Sign(priv crypto.PrivKey, peerID peer.ID, subnetIDs []subnetid.ID) (Envelope, error) {
	record := NewRecord(peerID, subnetIDs)
	return SignRecord(priv, record)
}

// SignRecord signs an already-constructed Record, producing a self
// describing Envelope.
func SignRecord(priv crypto.PrivKey, record Record) (Envelope, error) {
	payload, err := canonicalPayload(record)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	sig, err := priv.Sign(signaturePreimage(PayloadTypeRecord, payload))
	if err != nil {
		return Envelope{}, fmt.Errorf("sign provider record: %w", err)
	}

	return Envelope{
		PeerID:      record.PeerID,
		PublicKey:   priv.GetPublic(),
		PayloadType: PayloadTypeRecord,
		Payload:     payload,
		Signature:   sig,
	}, nil
}

// signaturePreimage is the exact byte sequence the signature covers:
// payload_type || payload, matching the wire description in the external
// interfaces of the gossip protocol.
func signaturePreimage(payloadType string, payload []byte) []byte {
	buf := make([]byte, 0, len(payloadType)+len(payload))
	buf = append(buf, []byte(payloadType)...)
	buf = append(buf, payload...)
	return buf
}

// Verify reports whether e's signature matches its embedded public key,
// and that the embedded peer ID is actually derived from that key.
func (e Envelope) Verify() error {
	derived, err := peer.IDFromPublicKey(e.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownPeer, err)
	}
	if derived != e.PeerID {
		return fmt.Errorf("%w: embedded peer %s, derived %s", ErrUnknownPeer, e.PeerID, derived)
	}
	ok, err := e.PublicKey.Verify(signaturePreimage(e.PayloadType, e.Payload), e.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !ok {
		return ErrBadSignature
	}
	return nil
}

// IntoRecord extracts the verified Record carried by e. Callers must call
// Verify (or Decode, which verifies internally) before trusting the
// result.
func (e Envelope) IntoRecord() (Record, error) {
	var r Record
	if err := json.Unmarshal(e.Payload, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r, nil
}

// Wire format (length-prefixed binary, big-endian):
//
//	[1]       version (0x01)
//	[2 BE]    peer ID string length
//	[N]       peer ID string
//	[2 BE]    public key length
//	[M]       marshaled public key (protobuf form, libp2p crypto package)
//	[1]       payload type length
//	[K]       payload type (ASCII)
//	[4 BE]    payload length
//	[L]       payload bytes
//	[2 BE]    signature length
//	[S]       signature bytes
const envelopeVersion byte = 0x01

// Encode serializes e to its wire form.
func Encode(e Envelope) ([]byte, error) {
	pubBytes, err := crypto.MarshalPublicKey(e.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal public key: %v", ErrMalformed, err)
	}

	peerIDStr := string(e.PeerID)
	payloadType := e.PayloadType

	var buf bytes.Buffer
	buf.WriteByte(envelopeVersion)

	writeLenPrefixed16(&buf, []byte(peerIDStr))
	writeLenPrefixed16(&buf, pubBytes)

	if len(payloadType) > 255 {
		return nil, fmt.Errorf("%w: payload type too long", ErrMalformed)
	}
	buf.WriteByte(byte(len(payloadType)))
	buf.WriteString(payloadType)

	var payloadLen [4]byte
	binary.BigEndian.PutUint32(payloadLen[:], uint32(len(e.Payload)))
	buf.Write(payloadLen[:])
	buf.Write(e.Payload)

	writeLenPrefixed16(&buf, e.Signature)

	return buf.Bytes(), nil
}

func writeLenPrefixed16(buf *bytes.Buffer, data []byte) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

// Decode parses the wire form produced by Encode and verifies the
// resulting envelope's signature before returning it.
func Decode(data []byte) (Envelope, error) {
	r := bytes.NewReader(data)

	var ver [1]byte
	if _, err := io.ReadFull(r, ver[:]); err != nil {
		return Envelope{}, fmt.Errorf("%w: version: %v", ErrMalformed, err)
	}
	if ver[0] != envelopeVersion {
		return Envelope{}, fmt.Errorf("%w: unsupported version 0x%02x", ErrMalformed, ver[0])
	}

	peerIDBytes, err := readLenPrefixed16(r)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: peer id: %v", ErrMalformed, err)
	}

	pubBytes, err := readLenPrefixed16(r)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: public key: %v", ErrMalformed, err)
	}
	pub, err := crypto.UnmarshalPublicKey(pubBytes)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: unmarshal public key: %v", ErrMalformed, err)
	}

	var ptLen [1]byte
	if _, err := io.ReadFull(r, ptLen[:]); err != nil {
		return Envelope{}, fmt.Errorf("%w: payload type length: %v", ErrMalformed, err)
	}
	ptBytes := make([]byte, ptLen[0])
	if _, err := io.ReadFull(r, ptBytes); err != nil {
		return Envelope{}, fmt.Errorf("%w: payload type: %v", ErrMalformed, err)
	}

	var payloadLen [4]byte
	if _, err := io.ReadFull(r, payloadLen[:]); err != nil {
		return Envelope{}, fmt.Errorf("%w: payload length: %v", ErrMalformed, err)
	}
	payload := make([]byte, binary.BigEndian.Uint32(payloadLen[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return Envelope{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}

	sig, err := readLenPrefixed16(r)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}

	e := Envelope{
		PeerID:      peer.ID(peerIDBytes),
		PublicKey:   pub,
		PayloadType: string(ptBytes),
		Payload:     payload,
		Signature:   sig,
	}

	if err := e.Verify(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func readLenPrefixed16(r *bytes.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
