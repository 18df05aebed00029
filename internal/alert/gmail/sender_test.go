package gmail

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annexparse/internal/config"
)

var _ enmime.Sender = (*Sender)(nil)

func TestRawMessageIsURLSafe(t *testing.T) {
	msg := []byte("Subject: ??>>\r\n\r\nbody ~~~ ???\r\n")
	raw := rawMessage(msg).Raw
	assert.NotContains(t, raw, "+")
	assert.NotContains(t, raw, "/")

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestNewSenderRequiresCredentials(t *testing.T) {
	_, err := NewSender(context.Background(), config.Config{GmailClientID: "id"})
	assert.Error(t, err)
}
