package solana

import (
	"context"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	log "github.com/sirupsen/logrus"

	"github.com/debridge-finance/oracle-node/models"
)

// StreamState is the lifecycle state of the websocket event stream.
type StreamState int32

const (
	StreamConnecting StreamState = iota
	StreamStreaming
	StreamReconnecting
)

func (s StreamState) String() string {
	switch s {
	case StreamConnecting:
		return "CONNECTING"
	case StreamStreaming:
		return "STREAMING"
	case StreamReconnecting:
		return "RECONNECTING"
	}
	return "UNKNOWN"
}

// BufferedEvent pairs a send event with its monitoring event from the
// same transaction, if one was emitted. BlockTime is zero for events that
// arrived over the websocket; the scanner resolves it before ingestion.
type BufferedEvent struct {
	Send       SendEvent
	Monitoring *MonitoringEvent
	BlockTime  int64
}

// EventStream keeps a websocket subscription to the bridge program's
// logs and buffers decoded events until the scanner drains them. Slot
// notifications act as heartbeats; when neither logs nor slots arrive
// within the heartbeat timeout the stream tears the connection down
// and resubscribes with a fresh context.
type EventStream struct {
	wsURL            string
	program          solanago.PublicKey
	heartbeatTimeout time.Duration

	mu         sync.Mutex
	state      StreamState
	buffer     []BufferedEvent
	lastSlot   uint64
	generation uint64
	reset      chan bool

	wg   sync.WaitGroup
	stop chan bool
}

// NewEventStream builds a stream for the configured websocket endpoint.
// The subscription is not opened until Start.
func NewEventStream(config models.ChainConfig) (*EventStream, error) {
	program, err := solanago.PublicKeyFromBase58(config.ProgramAddress)
	if err != nil {
		return nil, err
	}
	return &EventStream{
		wsURL:            config.WSURL,
		program:          program,
		heartbeatTimeout: time.Duration(config.HeartbeatTimeoutMillis) * time.Millisecond,
		state:            StreamConnecting,
		reset:            make(chan bool, 1),
		stop:             make(chan bool, 1),
	}, nil
}

func (s *EventStream) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *EventStream) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// State reports the current connection state.
func (s *EventStream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation counts successful subscriptions. A change between reads tells
// the consumer the stream (re)connected and was live-only in between, so any
// gap must be replayed from the persisted cursor.
func (s *EventStream) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// LastSlot reports the highest slot seen on the heartbeat subscription.
func (s *EventStream) LastSlot() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSlot
}

// Drain hands over all buffered events and empties the buffer.
func (s *EventStream) Drain() []BufferedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	buffered := s.buffer
	s.buffer = nil
	return buffered
}

// Reset discards any buffered events and forces the stream to drop the
// current connection and resubscribe. Used after a failed sync so the
// next drain starts from a clean subscription.
func (s *EventStream) Reset() {
	s.mu.Lock()
	s.buffer = nil
	s.mu.Unlock()
	select {
	case s.reset <- true:
	default:
	}
}

func (s *EventStream) setState(state StreamState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		log.WithFields(log.Fields{"module": "solana", "chain_id": SolanaChainId}).
			Infof("[SOLANA STREAM] state %s", state)
	}
}

func (s *EventStream) run() {
	defer s.wg.Done()
	logger := log.WithFields(log.Fields{"module": "solana", "chain_id": SolanaChainId})

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.setState(StreamConnecting)
		if err := s.streamOnce(); err != nil {
			logger.WithError(err).Warn("[SOLANA STREAM] Stream interrupted; reconnecting")
		}
		s.setState(StreamReconnecting)

		select {
		case <-s.stop:
			return
		case <-time.After(time.Second):
		}
	}
}

// streamOnce runs one subscription lifetime: connect, subscribe to
// program logs and slot heartbeats, then buffer events until the
// watchdog fires, a reset is requested, or the connection dies.
func (s *EventStream) streamOnce() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := ws.Connect(ctx, s.wsURL)
	if err != nil {
		return err
	}
	defer client.Close()

	logSub, err := client.LogsSubscribeMentions(s.program, rpc.CommitmentFinalized)
	if err != nil {
		return err
	}
	defer logSub.Unsubscribe()

	slotSub, err := client.SlotSubscribe()
	if err != nil {
		return err
	}
	defer slotSub.Unsubscribe()

	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
	s.setState(StreamStreaming)

	logCh := make(chan *ws.LogResult)
	slotCh := make(chan *ws.SlotResult)
	errCh := make(chan error, 2)

	go func() {
		for {
			result, err := logSub.Recv(ctx)
			if err != nil {
				errCh <- err
				return
			}
			select {
			case logCh <- result:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		for {
			result, err := slotSub.Recv(ctx)
			if err != nil {
				errCh <- err
				return
			}
			select {
			case slotCh <- result:
			case <-ctx.Done():
				return
			}
		}
	}()

	watchdog := time.NewTimer(s.heartbeatTimeout)
	defer watchdog.Stop()
	resetWatchdog := func() {
		if !watchdog.Stop() {
			select {
			case <-watchdog.C:
			default:
			}
		}
		watchdog.Reset(s.heartbeatTimeout)
	}

	for {
		select {
		case <-s.stop:
			return nil
		case <-s.reset:
			return nil
		case err := <-errCh:
			return err
		case <-watchdog.C:
			return errHeartbeatTimeout
		case result := <-slotCh:
			s.mu.Lock()
			if result.Slot > s.lastSlot {
				s.lastSlot = result.Slot
			}
			s.mu.Unlock()
			resetWatchdog()
		case result := <-logCh:
			if result.Value.Err == nil {
				s.bufferLogs(result)
			}
			resetWatchdog()
		}
	}
}

func (s *EventStream) bufferLogs(result *ws.LogResult) {
	sends, monitorings, err := ParseLogs(result.Value.Logs, result.Context.Slot, result.Value.Signature.String())
	if err != nil {
		log.WithFields(log.Fields{"module": "solana", "chain_id": SolanaChainId}).
			WithError(err).Error("[SOLANA STREAM] Error decoding streamed logs")
		return
	}

	monitoringById := make(map[[32]byte]*MonitoringEvent, len(monitorings))
	for i := range monitorings {
		monitoringById[monitorings[i].SubmissionId] = &monitorings[i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, send := range sends {
		s.buffer = append(s.buffer, BufferedEvent{
			Send:       send,
			Monitoring: monitoringById[send.SubmissionId],
		})
	}
}

var errHeartbeatTimeout = &heartbeatTimeoutError{}

type heartbeatTimeoutError struct{}

func (e *heartbeatTimeoutError) Error() string {
	return "no heartbeat within timeout"
}
