package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Handler processes one job attempt. The job argument is a snapshot; mutating
// it has no effect on queue state. Returning an error triggers the retry
// policy unless the error is wrapped with Permanent; returning nil marks the
// job completed with the returned result.
type Handler func(ctx context.Context, job *Job) (any, error)

// retryAfterError carries a caller-chosen backoff for the next attempt.
type retryAfterError struct {
	err   error
	delay time.Duration
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.err, e.delay)
}

func (e *retryAfterError) Unwrap() error {
	return e.err
}

// RetryAfter wraps a handler error with an explicit delay before the next
// attempt, overriding the queue's fixed retry delay for that attempt.
func RetryAfter(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return &retryAfterError{err: err, delay: delay}
}

// retryDelayFrom extracts a caller-supplied backoff from an error chain.
func retryDelayFrom(err error) (time.Duration, bool) {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.delay, true
	}
	return 0, false
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps a handler error so the job fails terminally even when
// attempts remain.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Typed adapts a strongly typed handler to the queue's Handler signature.
// The payload is decoded into T: a T payload passes through directly, a
// map[string]any decodes via mapstructure, and raw JSON unmarshals. Any other
// payload shape is a permanent error.
func Typed[T any](fn func(ctx context.Context, payload T, job *Job) (any, error)) Handler {
	return func(ctx context.Context, job *Job) (any, error) {
		payload, err := decodePayload[T](job.Payload)
		if err != nil {
			return nil, Permanent(fmt.Errorf("decode %s payload: %w", job.Type, err))
		}
		return fn(ctx, payload, job)
	}
}

func decodePayload[T any](raw any) (T, error) {
	var payload T

	switch v := raw.(type) {
	case T:
		return v, nil
	case nil:
		return payload, nil
	case map[string]any:
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			Result:           &payload,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return payload, err
		}
		if err := decoder.Decode(v); err != nil {
			return payload, err
		}
		return payload, nil
	case json.RawMessage:
		if err := json.Unmarshal(v, &payload); err != nil {
			return payload, err
		}
		return payload, nil
	case []byte:
		if err := json.Unmarshal(v, &payload); err != nil {
			return payload, err
		}
		return payload, nil
	default:
		return payload, fmt.Errorf("unsupported payload type %T", raw)
	}
}
