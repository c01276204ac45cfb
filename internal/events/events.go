// Package events reports pipeline progress to an optional NATS
// endpoint. Reporting is advisory; failures never affect the
// pipeline.
package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectDeployStatus is the subject prefix for deployment status
// events; the run identifier is appended.
const SubjectDeployStatus = "hatch.deploy.status."

// Status is one stage-transition or terminal-result event.
type Status struct {
	RunID     string    `json:"run_id"`
	UnitID    int       `json:"unit_id"`
	Stage     string    `json:"stage"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes status events. A nil Publisher is valid and
// publishes nothing.
type Publisher struct {
	nc *nats.Conn
}

// Connect establishes a connection to a NATS server.
func Connect(natsURL string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	log.Println("Connected to NATS server at", natsURL)
	return &Publisher{nc: nc}, nil
}

// Publish sends one status event. Failures are logged and dropped.
func (p *Publisher) Publish(st Status) {
	if p == nil {
		return
	}
	st.Timestamp = time.Now()
	data, err := json.Marshal(st)
	if err != nil {
		log.Printf("[ERROR] Marshalling status event: %v", err)
		return
	}
	if err := p.nc.Publish(SubjectDeployStatus+st.RunID, data); err != nil {
		log.Printf("[WARN] Publishing status event: %v", err)
		return
	}
	p.nc.Flush()
}

// Close flushes and closes the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.nc.Flush()
	p.nc.Close()
}
