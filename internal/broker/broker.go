// Package broker terminates the browser's native messaging stream and
// routes each request to the host script registered under its name.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scriptbridge/sb-broker/internal/frame"
	"github.com/scriptbridge/sb-broker/internal/hostdir"
	"github.com/scriptbridge/sb-broker/internal/protocol"
	"github.com/scriptbridge/sb-broker/internal/supervisor"
)

// MalformedEnvelopeMessage is returned when hostName or payload is missing.
const MalformedEnvelopeMessage = "Invalid message format. 'hostName' and 'payload' are required."

const readChunkSize = 32 * 1024

// Runner executes a resolved host.
type Runner interface {
	Run(ctx context.Context, def hostdir.Definition, payload json.RawMessage) supervisor.Outcome
}

// Broker handles requests read from one input stream.
type Broker struct {
	dir        hostdir.Directory
	runner     Runner
	out        *frame.Writer
	maxPayload int
	logger     *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Broker replying on out.
func New(dir hostdir.Directory, runner Runner, out *frame.Writer, maxPayload int, logger *zap.Logger) *Broker {
	return &Broker{
		dir:        dir,
		runner:     runner,
		out:        out,
		maxPayload: maxPayload,
		logger:     logger,
	}
}

// Serve reads frames from in until EOF or a read error, handling each
// request concurrently. It returns after every in-flight request replied.
func (b *Broker) Serve(ctx context.Context, in io.Reader) error {
	demux := frame.NewDemuxer(b.maxPayload, func(msg json.RawMessage, bad *frame.PayloadError) {
		if bad != nil {
			b.logger.Warn("invalid JSON frame", zap.Int("bytes", len(bad.Payload)))
			b.out.Send(protocol.ErrorReply{Error: fmt.Sprintf("Invalid JSON message: %d bytes could not be parsed", len(bad.Payload))})
			return
		}
		if !b.track() {
			b.logger.Warn("broker closed, request dropped")
			return
		}
		go func() {
			defer b.wg.Done()
			b.out.Send(b.Handle(ctx, msg))
		}()
	}, b.logger)

	buf := make([]byte, readChunkSize)
	var readErr error
	for {
		n, err := in.Read(buf)
		if n > 0 {
			demux.Feed(buf[:n])
		}
		if err != nil {
			readErr = err
			break
		}
	}

	if pending := demux.Buffered(); pending > 0 {
		b.logger.Warn("input closed mid-frame", zap.Int("bytes", pending))
	}
	b.wg.Wait()

	if errors.Is(readErr, io.EOF) {
		return nil
	}
	return fmt.Errorf("read input: %w", readErr)
}

// Handle processes one decoded message and returns the reply value.
func (b *Broker) Handle(ctx context.Context, msg json.RawMessage) any {
	logger := b.logger.With(zap.String("request_id", uuid.NewString()))

	env, ok := parseEnvelope(msg)
	if !ok {
		logger.Warn("malformed envelope")
		return protocol.ErrorReply{Error: MalformedEnvelopeMessage}
	}
	logger = logger.With(zap.String("host", env.HostName))

	def, err := b.dir.Resolve(env.HostName)
	if err != nil {
		var nf *hostdir.NotFoundError
		if errors.As(err, &nf) {
			logger.Warn("unknown host")
			return protocol.ErrorReply{Error: nf.Error()}
		}
		logger.Error("resolve host failed", zap.Error(err))
		var ce *hostdir.ConfigError
		if errors.As(err, &ce) {
			return protocol.ErrorReply{Error: fmt.Sprintf("Host configuration unavailable: %v", ce.Err)}
		}
		return protocol.ErrorReply{Error: fmt.Sprintf("Host configuration unavailable: %v", err)}
	}

	logger.Info("dispatching request", zap.String("script", def.ScriptPath))
	outcome := b.runner.Run(ctx, def, env.Payload)
	if outcome.Kind == supervisor.Failure {
		logger.Warn("request failed", zap.String("reason", outcome.Message))
	} else {
		logger.Info("request completed", zap.Stringer("outcome", outcome.Kind))
	}
	return outcome.Reply()
}

// parseEnvelope accepts only objects with a non-empty string hostName and
// a non-null payload.
func parseEnvelope(msg json.RawMessage) (protocol.Envelope, bool) {
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return protocol.Envelope{}, false
	}
	if env.HostName == "" || len(env.Payload) == 0 || string(env.Payload) == "null" {
		return protocol.Envelope{}, false
	}
	return env, true
}

// Wait stops dispatching new requests and blocks until every dispatched
// request has replied.
func (b *Broker) Wait() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Broker) track() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.wg.Add(1)
	return true
}
