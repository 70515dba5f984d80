package observability

import (
	"strconv"
	"sync"
)

// Metrics provides basic in-memory counters for the HTTP surface and the
// breach scanner.
type Metrics struct {
	mu               sync.Mutex
	requestCount     map[string]int64
	errorCount       map[string]int64
	ticketsScanned   int64
	breachCount      map[string]int64
	approachingCount map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:     make(map[string]int64),
		errorCount:       make(map[string]int64),
		breachCount:      make(map[string]int64),
		approachingCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordScan accumulates the number of tickets checked by a sweep.
func (m *Metrics) RecordScan(checked int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticketsScanned += int64(checked)
}

// RecordBreach counts a detected breach per deadline type.
func (m *Metrics) RecordBreach(deadlineType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breachCount[deadlineType]++
}

// RecordApproaching counts an approaching-deadline detection per type.
func (m *Metrics) RecordApproaching(deadlineType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approachingCount[deadlineType]++
}
