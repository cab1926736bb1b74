package protocol

import "fmt"

// DecodeError reports an inbound frame whose shape could not be recognized.
type DecodeError struct {
	Data []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode frame (%d bytes): %v", len(e.Data), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
