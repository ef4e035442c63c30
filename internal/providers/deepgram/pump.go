package deepgram

import (
	"errors"
	"fmt"
	"io"
	"time"
)

const minChunkSize = 256

type audioSink interface {
	SendAudio(chunk []byte) error
	CloseSend() error
}

// pumpAudio copies microphone PCM into the live session until the microphone
// reaches EOF, then half-closes the session so final results can flush.
func pumpAudio(mic io.Reader, sink audioSink, chunkSize int) error {
	defer sink.CloseSend()

	if chunkSize < minChunkSize {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := mic.Read(buf)
		if n > 0 {
			if sendErr := sink.SendAudio(buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("audio capture error: %w", err)
		}
	}
}

type waiter interface {
	Wait() error
	Close() error
}

// waitForStream gives the provider timeout to deliver trailing results before
// forcing the session closed.
func waitForStream(session waiter, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
