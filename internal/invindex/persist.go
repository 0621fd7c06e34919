package invindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// docLine and idfLine are the newline-delimited JSON record shapes for
// the TF-IDF snapshot format (spec §6): one line per document, followed
// by a single trailing line carrying the IDF map.
type docLine struct {
	Name   string         `json:"name"`
	Terms  map[string]int `json:"terms"`
	Length int            `json:"length"`
}

type idfLine struct {
	IDF map[string]float64 `json:"idf"`
}

// SaveIndex persists the document vectors and IDF map as
// newline-delimited JSON under an advisory file lock, guarding against a
// second process interleaving a partial write into the same path.
func (t *TFIDFIndex) SaveIndex(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock index snapshot: %w", err)
	}
	defer lock.Unlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	for _, name := range t.inverted.Docs() {
		line := docLine{Name: name, Terms: t.inverted.TermsFor(name), Length: t.inverted.DocLength(name)}
		if err := enc.Encode(line); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("encode document: %w", err)
		}
	}
	if err := enc.Encode(idfLine{IDF: t.idf}); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode idf: %w", err)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadIndex reads a snapshot written by SaveIndex. Loading is optional;
// the index can always be rebuilt from the graph instead (spec §4.3).
func (t *TFIDFIndex) LoadIndex(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("lock index snapshot: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrIndexUnavailable
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	inverted := NewInvertedIndex()
	var idf map[string]float64

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return fmt.Errorf("decode snapshot line: %w", err)
		}
		if _, isIDF := probe["idf"]; isIDF {
			var line idfLine
			if err := json.Unmarshal(raw, &line); err != nil {
				return fmt.Errorf("decode idf line: %w", err)
			}
			idf = line.IDF
			continue
		}
		var line docLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("decode document line: %w", err)
		}
		terms := make([]string, 0, line.Length)
		for term, count := range line.Terms {
			for i := 0; i < count; i++ {
				terms = append(terms, term)
			}
		}
		inverted.Insert(line.Name, terms)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan snapshot: %w", err)
	}

	t.inverted = inverted
	if idf != nil {
		t.idf = idf
	} else {
		t.recomputeAllIDF()
	}
	return nil
}
