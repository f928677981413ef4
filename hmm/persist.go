package hmm

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type modelDocument struct {
	Emissions   ProbTable `json:"emissions"`
	Transitions ProbTable `json:"transitions"`
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelDocument{
		Emissions:   m.emissions,
		Transitions: m.transitions,
	})
}

// ReadModel decodes a model written by MarshalJSON and validates its tables.
func ReadModel(r io.Reader) (*Model, error) {
	var doc modelDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if doc.Emissions == nil {
		doc.Emissions = ProbTable{}
	}
	if doc.Transitions == nil {
		doc.Transitions = ProbTable{}
	}
	return NewModel(doc.Emissions, doc.Transitions)
}

func LoadModelFromFile(modelFilePath string) (*Model, error) {
	f, err := os.Open(modelFilePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadModel(f)
}

// SaveToFile writes the model next to modelFilePath and renames it into place, so readers
// never see a partially written model.
func (m *Model) SaveToFile(modelFilePath string) (err error) {
	buf, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(modelFilePath), filepath.Base(modelFilePath)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(buf); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), modelFilePath)
}
