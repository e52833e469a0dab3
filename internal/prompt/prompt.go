// Package prompt holds the process-wide enrichment instruction.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// DefaultInstruction asks for the five listing fields.
const DefaultInstruction = `You are an AI assistant. Given the raw text from a CSV row, your task is to parse the following fields:
1.  **make**: The car manufacturer (e.g., "Honda", "Toyota").
2.  **model**: The car model (e.g., "Civic", "Camry").
3.  **year**: The 4-digit model year as a number.
4.  **color**: The primary color of the car.
5.  **status**: The condition of the car (e.g., "New", "Used", "CPO").

Respond ONLY with the extracted JSON.`

var ErrEmptyInstruction = errors.New("instruction must not be blank")

// Holder is safe for concurrent use. Calls already issued keep the text they read.
type Holder struct {
	mu   sync.RWMutex
	text string
}

// New returns a holder seeded with initial, or DefaultInstruction when initial is blank.
func New(initial string) *Holder {
	if strings.TrimSpace(initial) == "" {
		initial = DefaultInstruction
	}
	return &Holder{text: initial}
}

// Load reads the instruction from a file. An empty path yields the default.
func Load(path string) (*Holder, error) {
	if path == "" {
		return New(""), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruction file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyInstruction)
	}
	return New(string(data)), nil
}

func (h *Holder) Get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.text
}

func (h *Holder) Set(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInstruction
	}
	h.mu.Lock()
	h.text = text
	h.mu.Unlock()
	return nil
}
