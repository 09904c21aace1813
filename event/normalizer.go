package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Normalizer maps one provider's raw payload to a PaymentEvent.
// Implementations must be pure and safe for concurrent use.
type Normalizer interface {
	Provider() string
	Normalize(raw []byte) (*PaymentEvent, error)
}

// Registry dispatches payloads to normalizers by provider id.
type Registry struct {
	mu          sync.RWMutex
	normalizers map[string]Normalizer
}

// NewRegistry returns a registry holding the given normalizers.
func NewRegistry(ns ...Normalizer) *Registry {
	r := &Registry{normalizers: make(map[string]Normalizer, len(ns))}
	for _, n := range ns {
		r.Register(n)
	}
	return r
}

// Register adds or replaces the normalizer for n.Provider().
func (r *Registry) Register(n Normalizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalizers[strings.ToLower(n.Provider())] = n
}

// Providers returns the registered provider ids.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.normalizers))
	for p := range r.normalizers {
		out = append(out, p)
	}
	return out
}

// Normalize maps raw using the normalizer registered for providerID.
// Every failure wraps ErrInvalidPayload or ErrUnsupportedType.
func (r *Registry) Normalize(providerID string, raw []byte) (*PaymentEvent, error) {
	r.mu.RLock()
	n, ok := r.normalizers[strings.ToLower(strings.TrimSpace(providerID))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidPayload, providerID)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	return n.Normalize(raw)
}

// looseString decodes JSON strings, numbers and null into a string.
// Provider payloads are inconsistent about quoting ids and amounts.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*s = ""
	case strings.HasPrefix(raw, `"`):
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(strings.TrimSpace(v))
	default:
		*s = looseString(raw)
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime accepts the layouts above or unix seconds.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised date %q", ErrInvalidPayload, s)
}
