package observe

import "sync"

// Recorder keeps every record it receives in memory. It is safe for concurrent
// use; accessors return copies.
type Recorder struct {
	mu      sync.Mutex
	logs    []LogRecord
	events  []EventRecord
	marks   []MarkRecord
	settles []SettleRecord
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnLog(rec LogRecord) {
	r.mu.Lock()
	r.logs = append(r.logs, rec)
	r.mu.Unlock()
}

func (r *Recorder) OnEvent(rec EventRecord) {
	r.mu.Lock()
	r.events = append(r.events, rec)
	r.mu.Unlock()
}

func (r *Recorder) OnMark(rec MarkRecord) {
	r.mu.Lock()
	r.marks = append(r.marks, rec)
	r.mu.Unlock()
}

func (r *Recorder) OnSettle(rec SettleRecord) {
	r.mu.Lock()
	r.settles = append(r.settles, rec)
	r.mu.Unlock()
}

func (r *Recorder) Logs() []LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogRecord(nil), r.logs...)
}

func (r *Recorder) Events() []EventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventRecord(nil), r.events...)
}

func (r *Recorder) Marks() []MarkRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MarkRecord(nil), r.marks...)
}

func (r *Recorder) Settlements() []SettleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SettleRecord(nil), r.settles...)
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.logs, r.events, r.marks, r.settles = nil, nil, nil, nil
	r.mu.Unlock()
}
