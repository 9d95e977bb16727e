package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/logger"
)

// Section errors.
var (
	ErrWrongSection    = errors.New("wrong section")
	ErrAlreadyImported = errors.New("section already imported")
)

// SectionData is the envelope a document travels in.
type SectionData struct {
	ID     string               `json:"id"`
	Data   json.RawMessage      `json:"data"`
	Addons map[string]AddonData `json:"addons,omitempty"`
}

// NewSectionData wraps a document.
func NewSectionData(id string, doc *Document, addons map[string]AddonData) (*SectionData, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding section %s: %w", id, err)
	}
	return &SectionData{ID: id, Data: raw, Addons: addons}, nil
}

// Document decodes the section payload as a scene document.
func (s *SectionData) Document() (*Document, error) {
	doc := New()
	if err := json.Unmarshal(s.Data, doc); err != nil {
		return nil, fmt.Errorf("decoding section %s: %w", s.ID, err)
	}
	return doc, nil
}

// DataListener is notified when a section is imported.
type DataListener interface {
	OnSectionDataImported(data json.RawMessage, addons map[string]AddonData)
}

// ListenerFunc adapts a function to DataListener. Being a func it is not
// comparable, so register it through a pointer if it must be removable.
type ListenerFunc func(data json.RawMessage, addons map[string]AddonData)

// OnSectionDataImported calls f.
func (f *ListenerFunc) OnSectionDataImported(data json.RawMessage, addons map[string]AddonData) {
	(*f)(data, addons)
}

// Section receives exactly one SectionData with a matching id.
type Section struct {
	mu        sync.Mutex
	id        string
	data      json.RawMessage
	addons    map[string]AddonData
	imported  bool
	listeners []DataListener
}

// NewSection creates an empty section expecting the given id.
func NewSection(id string) *Section {
	return &Section{id: id, addons: map[string]AddonData{}}
}

// ID returns the section id.
func (s *Section) ID() string {
	return s.id
}

// Imported reports whether a section has been accepted.
func (s *Section) Imported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imported
}

// AddDataListener registers l once; duplicates are ignored.
func (s *Section) AddDataListener(l DataListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.listeners {
		if existing == l {
			return
		}
	}
	s.listeners = append(s.listeners, l)
}

// RemoveDataListener unregisters l. Unknown listeners are ignored.
func (s *Section) RemoveDataListener(l DataListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// Import accepts sd if its id matches and nothing was imported yet, then
// notifies every listener. Rejections leave the section untouched.
func (s *Section) Import(sd *SectionData) error {
	s.mu.Lock()
	if sd.ID != s.id {
		s.mu.Unlock()
		logger.Warn("wrong section", zap.String("expected", s.id), zap.String("got", sd.ID))
		return fmt.Errorf("%w: expected %q, got %q", ErrWrongSection, s.id, sd.ID)
	}
	if s.imported {
		s.mu.Unlock()
		logger.Warn("section already imported", zap.String("section", s.id))
		return fmt.Errorf("%w: %s", ErrAlreadyImported, s.id)
	}
	s.imported = true
	s.data = sd.Data
	s.addons = sd.Addons
	if s.addons == nil {
		s.addons = map[string]AddonData{}
	}
	listeners := append([]DataListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		out := s.Export()
		l.OnSectionDataImported(out.Data, out.Addons)
	}
	return nil
}

// Export returns the section contents as an envelope.
func (s *Section) Export() *SectionData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &SectionData{ID: s.id, Data: s.data, Addons: s.addons}
}
