package models

import (
	"encoding/json"
	"fmt"
)

type Modality uint8

const (
	ModalityVisual Modality = 1 << iota
	ModalityAudio
	ModalityIoT
	ModalityFusion
)

var modalityNames = []struct {
	m    Modality
	name string
}{
	{ModalityVisual, "VISUAL"},
	{ModalityAudio, "AUDIO"},
	{ModalityIoT, "IOT"},
	{ModalityFusion, "FUSION"},
}

func (m Modality) String() string {
	for _, n := range modalityNames {
		if n.m == m {
			return n.name
		}
	}
	return fmt.Sprintf("Modality(%d)", uint8(m))
}

func ParseModality(s string) (Modality, error) {
	for _, n := range modalityNames {
		if n.name == s {
			return n.m, nil
		}
	}
	return 0, fmt.Errorf("unknown modality %q", s)
}

func (m Modality) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Modality) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseModality(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ModalitySet is a set of modalities encoded as bit flags.
type ModalitySet uint8

func NewModalitySet(ms ...Modality) ModalitySet {
	var set ModalitySet
	for _, m := range ms {
		set = set.Add(m)
	}
	return set
}

func (s ModalitySet) Add(m Modality) ModalitySet {
	return s | ModalitySet(m)
}

func (s ModalitySet) Has(m Modality) bool {
	return s&ModalitySet(m) != 0
}

// List returns the members in declaration order.
func (s ModalitySet) List() []Modality {
	var out []Modality
	for _, n := range modalityNames {
		if s.Has(n.m) {
			out = append(out, n.m)
		}
	}
	return out
}

func (s ModalitySet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 4)
	for _, m := range s.List() {
		names = append(names, m.String())
	}
	return json.Marshal(names)
}

func (s *ModalitySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set ModalitySet
	for _, name := range names {
		m, err := ParseModality(name)
		if err != nil {
			return err
		}
		set = set.Add(m)
	}
	*s = set
	return nil
}
