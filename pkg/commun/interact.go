package commun

import (
	"encoding/json"
	"fmt"
)

// Interact is the structured payload of REQ_INTERACT and RSP_INTERACT.
type Interact []InteractEntry

type InteractEntry struct {
	Index int            `json:"index"`
	Name  string         `json:"name"`
	Desc  string         `json:"desc"`
	Items []InteractItem `json:"items"`
}

type InteractItem struct {
	Time  int64  `json:"time"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Codec turns an Interact into bytes and back.
type Codec interface {
	Marshal(Interact) ([]byte, error)
	Unmarshal([]byte) (Interact, error)
}

// JSONCodec encodes an Interact as a JSON array of entries.
type JSONCodec struct{}

func (JSONCodec) Marshal(in Interact) ([]byte, error) {
	out := make(Interact, len(in))
	for i, e := range in {
		if e.Items == nil {
			e.Items = []InteractItem{}
		}
		out[i] = e
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode interact: %w", err)
	}
	return b, nil
}

func (JSONCodec) Unmarshal(b []byte) (Interact, error) {
	if len(b) == 0 {
		return Interact{}, nil
	}
	var in Interact
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("decode interact: %w", err)
	}
	return in, nil
}
