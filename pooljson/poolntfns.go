package pooljson

import (
	"fmt"
	"math"
)

const (
	// NotifyNtfnMethod announces a new job to a worker.
	NotifyNtfnMethod = "mining.notify"

	// GoodByeNtfnMethod tells a worker the pool is closing the connection.
	GoodByeNtfnMethod = "mining.bye"
)

// JobNtfn is a unit of work pushed by the pool.
//
// params: [<ignored>, data, target, nonce_start?, nonce_end?]
type JobNtfn struct {
	ID         string
	Data       string
	Target     string
	NonceStart uint64
	NonceEnd   uint64
}

// NewJobNtfn returns a job notification covering [start, end].
func NewJobNtfn(id, data, target string, start, end uint64) *JobNtfn {
	return &JobNtfn{
		ID:         id,
		Data:       data,
		Target:     target,
		NonceStart: start,
		NonceEnd:   end,
	}
}

// SameJob reports whether other describes the same job: equal non-empty ids
// or equal data.
func (j *JobNtfn) SameJob(other *JobNtfn) bool {
	if j == nil || other == nil {
		return false
	}
	if j.ID != "" && j.ID == other.ID {
		return true
	}
	return j.Data == other.Data
}

// String returns a short description for logging.
func (j *JobNtfn) String() string {
	return fmt.Sprintf("job %q data %s target %s range [%d, %d]",
		j.ID, j.Data, j.Target, j.NonceStart, j.NonceEnd)
}

// JobNtfn decodes the message as a job notification. With only three params
// the job covers the whole nonce space, with four the range is open ended.
func (m *Message) JobNtfn() (*JobNtfn, error) {
	if m.Method != NotifyNtfnMethod {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedMethod, m.Method)
	}
	if len(m.Params) < 3 {
		return nil, fmt.Errorf("%w: %d params", ErrInvalidParams, len(m.Params))
	}

	id, err := m.IDString()
	if err != nil {
		return nil, err
	}
	data, err := paramString(m.Params, 1, "data")
	if err != nil {
		return nil, err
	}
	target, err := paramString(m.Params, 2, "target")
	if err != nil {
		return nil, err
	}

	job := NewJobNtfn(id, data, target, 0, math.MaxUint64)
	if len(m.Params) >= 4 {
		job.NonceStart, err = paramUint64(m.Params, 3, "nonce_start")
		if err != nil {
			return nil, err
		}
	}
	if len(m.Params) >= 5 {
		job.NonceEnd, err = paramUint64(m.Params, 4, "nonce_end")
		if err != nil {
			return nil, err
		}
	}
	if job.NonceStart > job.NonceEnd {
		return nil, fmt.Errorf("%w: nonce_start %d above nonce_end %d", ErrInvalidParams,
			job.NonceStart, job.NonceEnd)
	}

	return job, nil
}

type notifyWire struct {
	ID     string        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Marshal encodes the job as one protocol line, including the terminating
// newline.
func (j *JobNtfn) Marshal() ([]byte, error) {
	return marshalLine(&notifyWire{
		ID:     j.ID,
		Method: NotifyNtfnMethod,
		Params: []interface{}{j.ID, j.Data, j.Target, j.NonceStart, j.NonceEnd},
	})
}

// MarshalGoodBye encodes the goodbye notification line.
func MarshalGoodBye() ([]byte, error) {
	return marshalLine(&notifyWire{
		Method: GoodByeNtfnMethod,
		Params: []interface{}{},
	})
}
