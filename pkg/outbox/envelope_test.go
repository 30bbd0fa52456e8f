package outbox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-orders/pkg/outbox"
)

func TestDecodeEnvelopeDefaultsVersion(t *testing.T) {
	raw := []byte(`{"event_id":"evt-1","occurred_at":"2026-01-02T03:04:05Z","actor":{"user_id":"7c3f1d2e-1111-4a5b-9c8d-0123456789ab","role":"customer"},"data":{"order_id":"x"}}`)

	env, err := outbox.DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, "evt-1", env.EventID)
	require.NotNil(t, env.Actor)
	assert.Equal(t, "customer", env.Actor.Role)
	assert.JSONEq(t, `{"order_id":"x"}`, string(env.Data))
}

func TestDecodeEnvelopeRejectsIncomplete(t *testing.T) {
	_, err := outbox.DecodeEnvelope([]byte(`{"version":1,"data":{}}`))
	assert.ErrorIs(t, err, outbox.ErrEnvelopeMissingID)

	_, err = outbox.DecodeEnvelope([]byte(`{"version":1,"event_id":"e","data":null}`))
	assert.ErrorIs(t, err, outbox.ErrEnvelopeMissingData)

	_, err = outbox.DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}
