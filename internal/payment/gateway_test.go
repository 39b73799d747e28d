package payment

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceGatewayCreateCheckout(t *testing.T) {
	logger := zerolog.New(io.Discard)
	gw := NewReferenceGateway(&logger)

	expires := time.Now().Add(30 * time.Minute)
	checkout, err := gw.CreateCheckout(context.Background(), "res-1", 150000, "RUB", expires)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(checkout.Reference, "chk_"))
	assert.Equal(t, int64(150000), checkout.Amount)
	assert.Equal(t, "RUB", checkout.Currency)
	assert.True(t, checkout.ExpiresAt.Equal(expires))

	second, err := gw.CreateCheckout(context.Background(), "res-1", 150000, "RUB", expires)
	require.NoError(t, err)
	assert.NotEqual(t, checkout.Reference, second.Reference)
}
