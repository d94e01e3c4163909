package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Service    string `json:"service"`
	UserID     string `json:"user_id,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	PaymentID  string `json:"payment_id,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	Step       string `json:"step,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

type entry struct {
	Fields
	Timestamp string `json:"timestamp"`
}

// Logger writes one JSON object per line through the standard logger.
type Logger struct {
	Service string
	Out     *log.Logger // nil -> log.Default()
}

func New(service string) *Logger { return &Logger{Service: service} }

func (l *Logger) Log(f Fields) {
	if l == nil {
		return
	}
	if f.Service == "" {
		f.Service = l.Service
	}
	out := l.Out
	if out == nil {
		out = log.Default()
	}
	data, err := json.Marshal(entry{Fields: f, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		out.Printf("{\"service\":%q,\"status\":\"log_error\",\"error\":%q}", f.Service, err.Error())
		return
	}
	out.Print(string(data))
}

// Err is Log with the error message filled in.
func (l *Logger) Err(f Fields, err error) {
	if err != nil {
		f.Error = err.Error()
	}
	l.Log(f)
}
