package chainrpc

import (
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"
)

// CIDMap is the wire encoding of a CID used throughout the Chain RPC
// protocol: {"/": "<base32-cid>"}. An absent CID is the object with the
// "/" key left out: a zero-value CIDMap marshals to {}, and {}, an empty
// "/" value and JSON null all decode to the zero value.
type CIDMap struct {
	CID cid.Cid
}

// NewCIDMap wraps c for wire encoding.
func NewCIDMap(c cid.Cid) CIDMap { return CIDMap{CID: c} }

func (m CIDMap) MarshalJSON() ([]byte, error) {
	if !m.CID.Defined() {
		return []byte("{}"), nil
	}
	return json.Marshal(struct {
		Slash string `json:"/"`
	}{Slash: m.CID.String()})
}

func (m *CIDMap) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = CIDMap{}
		return nil
	}
	var aux struct {
		Slash string `json:"/"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("%w: decode cid map: %v", ErrProtocol, err)
	}
	if aux.Slash == "" {
		*m = CIDMap{}
		return nil
	}
	c, err := cid.Decode(aux.Slash)
	if err != nil {
		return fmt.Errorf("%w: decode cid %q: %v", ErrProtocol, aux.Slash, err)
	}
	m.CID = c
	return nil
}

// cidsFromMaps unwraps a slice of CIDMap into plain CIDs.
func cidsFromMaps(maps []CIDMap) []cid.Cid {
	out := make([]cid.Cid, len(maps))
	for i, m := range maps {
		out[i] = m.CID
	}
	return out
}

// cidMapsFromCIDs wraps a slice of CIDs for wire transmission.
func cidMapsFromCIDs(cids []cid.Cid) []CIDMap {
	out := make([]CIDMap, len(cids))
	for i, c := range cids {
		out[i] = CIDMap{CID: c}
	}
	return out
}
