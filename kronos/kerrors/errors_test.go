package kerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportErrorMessage(t *testing.T) {
	err := &TransportError{Op: "POST /1.0/events/get", Status: 503}
	assert.Equal(t, "POST /1.0/events/get: bad status code 503", err.Error())

	err = &TransportError{Op: "GET /1.0/index", Err: errors.New("connection refused")}
	assert.Equal(t, "GET /1.0/index: connection refused", err.Error())
}

func TestDecodeErrorTruncatesLine(t *testing.T) {
	long := `{"a":"` + string(make([]byte, 100)) + `"`
	err := &DecodeError{Line: long, Err: errors.New("unexpected end of JSON input")}
	assert.Contains(t, err.Error(), "...")
	assert.Contains(t, err.Error(), "unexpected end of JSON input")
}

func TestDecodeErrorCarriesStatus(t *testing.T) {
	err := fmt.Errorf("index: %w", &DecodeError{Status: 200, Err: errors.New("invalid character 'n'")})
	assert.True(t, IsDecode(err))
	assert.False(t, IsTransport(err))
	assert.Equal(t, 200, StatusCode(err))
	assert.Contains(t, err.Error(), "decode response (status 200)")
	assert.Zero(t, StatusCode(&DecodeError{Line: "{", Err: errors.New("bad")}))
}

func TestClassification(t *testing.T) {
	transport := fmt.Errorf("attempt 3: %w", &TransportError{Op: "POST /x", Status: 500})
	decode := &DecodeError{Line: "{", Err: errors.New("bad")}
	misuse := Misuse("consumer already registered")

	assert.True(t, IsTransport(transport))
	assert.Equal(t, 500, StatusCode(transport))
	assert.True(t, IsDecode(decode))
	assert.True(t, IsProtocolMisuse(misuse))

	assert.True(t, Retryable(transport))
	assert.True(t, Retryable(decode))
	assert.False(t, Retryable(misuse))
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(errors.New("plain")))
}

func TestCancellationIsNotRetryable(t *testing.T) {
	err := &TransportError{Op: "POST /1.0/events/get", Err: context.Canceled}
	assert.True(t, IsTransport(err))
	assert.False(t, Retryable(err))
}
