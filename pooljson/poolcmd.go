package pooljson

import (
	"fmt"
	"strconv"
)

const (
	// SubmitCmdMethod reports a solution from a worker.
	SubmitCmdMethod = "submit"

	// ProgressCmdMethod reports the nonce a worker thread has reached.
	ProgressCmdMethod = "progress"
)

// SubmitCmd is sent by a worker thread that found a nonce below the job
// target.
//
// {"method":"submit","params":[nonce,hash],"thread_id":i}
type SubmitCmd struct {
	Nonce    uint64
	Hash     string
	ThreadID int
}

// NewSubmitCmd returns a new submit command.
func NewSubmitCmd(nonce uint64, hash string, threadID int) *SubmitCmd {
	return &SubmitCmd{
		Nonce:    nonce,
		Hash:     hash,
		ThreadID: threadID,
	}
}

type submitWire struct {
	Method   string        `json:"method"`
	Params   []interface{} `json:"params"`
	ThreadID int           `json:"thread_id"`
}

// Marshal encodes the command as one protocol line.
func (c *SubmitCmd) Marshal() ([]byte, error) {
	return marshalLine(&submitWire{
		Method:   SubmitCmdMethod,
		Params:   []interface{}{c.Nonce, c.Hash},
		ThreadID: c.ThreadID,
	})
}

// SubmitCmd decodes the message as a submit command.
func (m *Message) SubmitCmd() (*SubmitCmd, error) {
	if m.Method != SubmitCmdMethod {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedMethod, m.Method)
	}
	if len(m.Params) < 2 {
		return nil, fmt.Errorf("%w: %d params", ErrInvalidParams, len(m.Params))
	}

	nonce, err := paramUint64(m.Params, 0, "nonce")
	if err != nil {
		return nil, err
	}
	hash, err := paramString(m.Params, 1, "hash")
	if err != nil {
		return nil, err
	}

	threadID := 0
	if m.ThreadID != nil {
		id, err := strconv.Atoi(m.ThreadID.String())
		if err != nil || id < 0 {
			return nil, fmt.Errorf("%w: thread_id", ErrInvalidParams)
		}
		threadID = id
	}

	return NewSubmitCmd(nonce, hash, threadID), nil
}

// ProgressCmd is sent by a worker thread each time it reaches a nonce that
// is a multiple of one million.
//
// {"method":"progress","params":[nonce,thread_id]}
type ProgressCmd struct {
	Nonce    uint64
	ThreadID int
}

// NewProgressCmd returns a new progress command.
func NewProgressCmd(nonce uint64, threadID int) *ProgressCmd {
	return &ProgressCmd{
		Nonce:    nonce,
		ThreadID: threadID,
	}
}

type progressWire struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Marshal encodes the command as one protocol line.
func (c *ProgressCmd) Marshal() ([]byte, error) {
	return marshalLine(&progressWire{
		Method: ProgressCmdMethod,
		Params: []interface{}{c.Nonce, c.ThreadID},
	})
}

// ProgressCmd decodes the message as a progress command.
func (m *Message) ProgressCmd() (*ProgressCmd, error) {
	if m.Method != ProgressCmdMethod {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedMethod, m.Method)
	}
	if len(m.Params) < 2 {
		return nil, fmt.Errorf("%w: %d params", ErrInvalidParams, len(m.Params))
	}

	nonce, err := paramUint64(m.Params, 0, "nonce")
	if err != nil {
		return nil, err
	}
	threadID, err := paramUint64(m.Params, 1, "thread_id")
	if err != nil {
		return nil, err
	}

	return NewProgressCmd(nonce, int(threadID)), nil
}
