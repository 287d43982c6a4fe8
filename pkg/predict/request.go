package predict

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRequest is the parent of all client input errors.
	ErrInvalidRequest = errors.New("invalid request")

	ErrMissingLevel = fmt.Errorf("%w: level is required", ErrInvalidRequest)
	ErrInvalidLevel = fmt.Errorf("%w: level must be a finite number", ErrInvalidRequest)
)

// Request is the body of a prediction call.
type Request struct {
	Level *Level `json:"level"`
}

// Response is the body of a successful prediction call.
type Response struct {
	Prediction float64 `json:"prediction"`
}

// Level is the position level feature. It decodes from a JSON number or
// from a string holding a number.
type Level float64

func (l *Level) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ErrInvalidLevel
	}

	var s string
	switch b[0] {
	case '"':
		if err := json.Unmarshal(b, &s); err != nil {
			return ErrInvalidLevel
		}
		s = strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		s = string(b)
	default:
		return ErrInvalidLevel
	}

	v, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = Level(v)
	return nil
}

// ParseLevel parses s as a finite float64.
func ParseLevel(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
	return v, nil
}

// DecodeRequest reads a single JSON object from r and validates it.
func DecodeRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: malformed JSON body: %w", ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks the required fields.
func (r *Request) Validate() error {
	if r == nil || r.Level == nil {
		return ErrMissingLevel
	}
	return nil
}
