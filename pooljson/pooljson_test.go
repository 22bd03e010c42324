package pooljson

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJob(t *testing.T, line string) (*JobNtfn, error) {
	msg, err := DecodeMessage([]byte(line))
	require.NoError(t, err)
	return msg.JobNtfn()
}

func TestJobNtfnFullForm(t *testing.T) {
	job, err := decodeJob(t, `{"id":"j1","method":"mining.notify","params":["j1","abcd","00ff",100,200]}`+"\n")
	require.NoError(t, err)
	assert.Equal(t, &JobNtfn{ID: "j1", Data: "abcd", Target: "00ff", NonceStart: 100, NonceEnd: 200}, job)
}

func TestJobNtfnRangeDefaults(t *testing.T) {
	job, err := decodeJob(t, `{"id":"j1","method":"mining.notify","params":["x","abcd","00ff"]}`)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), job.NonceStart)
	assert.Equal(t, uint64(math.MaxUint64), job.NonceEnd)

	job, err = decodeJob(t, `{"id":"j1","method":"mining.notify","params":["x","abcd","00ff",500]}`)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), job.NonceStart)
	assert.Equal(t, uint64(math.MaxUint64), job.NonceEnd)
}

func TestJobNtfnNumericAndMissingID(t *testing.T) {
	job, err := decodeJob(t, `{"id":1712345678901,"method":"mining.notify","params":[0,"abcd","00ff"]}`)
	require.NoError(t, err)
	assert.Equal(t, "1712345678901", job.ID)

	job, err = decodeJob(t, `{"method":"mining.notify","params":[null,"abcd","00ff"]}`)
	require.NoError(t, err)
	assert.Equal(t, "", job.ID)

	_, err = decodeJob(t, `{"id":true,"method":"mining.notify","params":[null,"abcd","00ff"]}`)
	assert.True(t, errors.Is(err, ErrInvalidParams))
}

func TestJobNtfnRangeAsStrings(t *testing.T) {
	job, err := decodeJob(t, `{"id":"a","method":"mining.notify","params":["a","d","t","18446744073709551614","18446744073709551615"]}`)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64-1), job.NonceStart)
	assert.Equal(t, uint64(math.MaxUint64), job.NonceEnd)
}

func TestJobNtfnInvalidParams(t *testing.T) {
	tests := []string{
		`{"id":"a","method":"mining.notify","params":["a","d"]}`,
		`{"id":"a","method":"mining.notify","params":["a",5,"t"]}`,
		`{"id":"a","method":"mining.notify","params":["a","d",null]}`,
		`{"id":"a","method":"mining.notify","params":["a","d","t","ten"]}`,
		`{"id":"a","method":"mining.notify","params":["a","d","t",-1]}`,
		`{"id":"a","method":"mining.notify","params":["a","d","t",1.5]}`,
		`{"id":"a","method":"mining.notify","params":["a","d","t",10,5]}`,
	}
	for _, line := range tests {
		_, err := decodeJob(t, line)
		assert.True(t, errors.Is(err, ErrInvalidParams), line)
	}
}

func TestJobNtfnWrongMethod(t *testing.T) {
	_, err := decodeJob(t, `{"id":"a","method":"mining.set","params":["a","d","t"]}`)
	assert.True(t, errors.Is(err, ErrUnexpectedMethod))
}

func TestDecodeMessageMalformed(t *testing.T) {
	for _, line := range []string{"", "not json", "[1,2,3]", `{"id":`, `{"method":"x","params":5}`} {
		_, err := DecodeMessage([]byte(line))
		assert.True(t, errors.Is(err, ErrMalformedMessage), line)
	}
}

func TestSameJob(t *testing.T) {
	active := NewJobNtfn("1", "aaaa", "t", 0, 10)

	assert.True(t, active.SameJob(NewJobNtfn("1", "bbbb", "t", 0, 10)))
	assert.True(t, active.SameJob(NewJobNtfn("2", "aaaa", "t", 0, 10)))
	assert.False(t, active.SameJob(NewJobNtfn("2", "bbbb", "t", 0, 10)))

	anonymous := NewJobNtfn("", "aaaa", "t", 0, 10)
	assert.False(t, anonymous.SameJob(NewJobNtfn("", "bbbb", "t", 0, 10)))
	assert.True(t, anonymous.SameJob(NewJobNtfn("", "aaaa", "t", 0, 10)))

	var none *JobNtfn
	assert.False(t, none.SameJob(active))
}

func TestJobNtfnMarshal(t *testing.T) {
	line, err := NewJobNtfn("42", "abcd", "00ff", 1<<40, 1<<41-1).Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{"id":"42","method":"mining.notify","params":["42","abcd","00ff",1099511627776,2199023255551]}`+"\n", string(line))

	msg, err := DecodeMessage(line)
	require.NoError(t, err)
	job, err := msg.JobNtfn()
	require.NoError(t, err)
	assert.Equal(t, NewJobNtfn("42", "abcd", "00ff", 1<<40, 1<<41-1), job)
}

func TestSubmitCmd(t *testing.T) {
	line, err := NewSubmitCmd(123456, "00ab", 3).Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{"method":"submit","params":[123456,"00ab"],"thread_id":3}`+"\n", string(line))

	msg, err := DecodeMessage(line)
	require.NoError(t, err)
	cmd, err := msg.SubmitCmd()
	require.NoError(t, err)
	assert.Equal(t, NewSubmitCmd(123456, "00ab", 3), cmd)

	_, err = msg.ProgressCmd()
	assert.True(t, errors.Is(err, ErrUnexpectedMethod))

	msg, err = DecodeMessage([]byte(`{"method":"submit","params":["x","00ab"],"thread_id":3}`))
	require.NoError(t, err)
	_, err = msg.SubmitCmd()
	assert.True(t, errors.Is(err, ErrInvalidParams))

	msg, err = DecodeMessage([]byte(`{"method":"submit","params":[1,"00ab"],"thread_id":-3}`))
	require.NoError(t, err)
	_, err = msg.SubmitCmd()
	assert.True(t, errors.Is(err, ErrInvalidParams))
}

func TestProgressCmd(t *testing.T) {
	line, err := NewProgressCmd(2000000, 1).Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{"method":"progress","params":[2000000,1]}`+"\n", string(line))

	msg, err := DecodeMessage(line)
	require.NoError(t, err)
	cmd, err := msg.ProgressCmd()
	require.NoError(t, err)
	assert.Equal(t, NewProgressCmd(2000000, 1), cmd)

	msg, err = DecodeMessage([]byte(`{"method":"progress","params":[2000000]}`))
	require.NoError(t, err)
	_, err = msg.ProgressCmd()
	assert.True(t, errors.Is(err, ErrInvalidParams))
}

func TestMarshalGoodBye(t *testing.T) {
	line, err := MarshalGoodBye()
	require.NoError(t, err)
	assert.Equal(t, `{"id":"","method":"mining.bye","params":[]}`+"\n", string(line))
}
