package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/outbox/payloads"
)

// ErrNoDecoder is returned for an event type and version nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

type decoderFunc func(payload json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps inbound event types and envelope versions to payload decoders.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	decoders map[decoderKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]decoderFunc)}
}

// NewInboundDecoderRegistry knows every event the worker consumes.
func NewInboundDecoderRegistry() *DecoderRegistry {
	reg := NewDecoderRegistry()
	RegisterJSON(reg, enums.EventPaymentConfirmed, 1, func(evt *payloads.PaymentConfirmedEvent) error {
		if evt.OrderID == uuid.Nil {
			return errors.New("order_id is required")
		}
		if strings.TrimSpace(evt.PaymentReference) == "" {
			return errors.New("payment_reference is required")
		}
		return nil
	})
	return reg
}

// RegisterJSON decodes payloads into a fresh *T and runs check, if given, on the result.
func RegisterJSON[T any](r *DecoderRegistry, eventType enums.OutboxEventType, version int, check func(*T) error) {
	r.Register(eventType, version, func(payload json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, err
		}
		if check != nil {
			if err := check(out); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

// Register installs decoder for eventType at version, replacing any previous one.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.decoders[decoderKey{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	decoder, ok := r.decoders[decoderKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoDecoder, eventType, version)
	}
	decoded, err := decoder(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s@v%d: %w", eventType, version, err)
	}
	return decoded, nil
}
