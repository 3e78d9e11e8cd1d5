package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Known personality model sections. Section names are not restricted to
// this set; these are the ones the prompts reference.
const (
	SectionIdentity           = "identity"
	SectionCommunicationStyle = "communication_style"
	SectionKnowledge          = "knowledge"
	SectionValues             = "values"
	SectionRelationships      = "relationships"
	SectionRules              = "rules"
)

// PersonalityModel is the section-structured document describing the
// impersonated person. One exists per persona.
type PersonalityModel struct {
	Persona   string            `json:"persona"`
	Sections  map[string]string `json:"sections"`
	CreatedAt time.Time         `json:"created_at"`
}

// JSON renders the document for model-facing tool output.
func (m *PersonalityModel) JSON() (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadModel returns the persona's personality model, or ErrModelNotFound
// when no document has been written yet.
func (s *Store) ReadModel(persona string) (*PersonalityModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readModelLocked(persona)
}

func (s *Store) readModelLocked(persona string) (*PersonalityModel, error) {
	var sectionsJSON string
	var createdAt time.Time
	err := s.db.QueryRow(
		`SELECT sections, created_at FROM personality_models WHERE persona = ?`,
		persona,
	).Scan(&sectionsJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: persona %s", ErrModelNotFound, persona)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	sections := make(map[string]string)
	if err := json.Unmarshal([]byte(sectionsJSON), &sections); err != nil {
		return nil, fmt.Errorf("corrupt sections document: %w", err)
	}

	return &PersonalityModel{
		Persona:   persona,
		Sections:  sections,
		CreatedAt: createdAt,
	}, nil
}

// UpdateSection sets one section of the persona's personality model,
// leaving every other section untouched.
//
// If no document exists it is created lazily with empty sections and a
// fresh created_at. An empty section or content makes the update a no-op
// that returns the current (possibly freshly created) document.
func (s *Store) UpdateSection(persona, section, content string) (*PersonalityModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	model, err := s.readModelLocked(persona)
	if errors.Is(err, ErrModelNotFound) {
		model = &PersonalityModel{
			Persona:   persona,
			Sections:  make(map[string]string),
			CreatedAt: time.Now().UTC(),
		}
	} else if err != nil {
		return nil, err
	}

	if section != "" && content != "" {
		model.Sections[section] = content
	}

	sectionsJSON, err := json.Marshal(model.Sections)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sections: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO personality_models (persona, sections, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(persona) DO UPDATE SET sections = excluded.sections`,
		persona, string(sectionsJSON), model.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to persist model: %w", err)
	}

	s.log.Debug("updated personality model section")
	return model, nil
}
