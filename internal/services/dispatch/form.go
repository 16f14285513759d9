package dispatch

import (
	"strings"
	"sync"
)

// Form holds the operator-entered fields shared by every unit of the next
// dispatch (carrier, tracking number, ...). It is reset after a dispatch in
// which every unit succeeded.
type Form struct {
	mu     sync.Mutex
	values map[string]string
}

func NewForm() *Form {
	return &Form{values: map[string]string{}}
}

func (f *Form) Set(key, value string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(value) == "" {
		delete(f.values, key)
		return
	}
	f.values[key] = value
}

func (f *Form) SetAll(values map[string]string) {
	for k, v := range values {
		f.Set(k, v)
	}
}

func (f *Form) Values() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = map[string]string{}
}
