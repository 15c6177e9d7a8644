package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"mechpower.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	valid := map[string]string{
		protocol.TypeHello: `{"type":"HELLO","protocol_version":"0.1","client_name":"builder","max_queue":8}`,
		protocol.TypeCmd:   `{"type":"CMD","protocol_version":"0.1","id":"c1","op":"PLACE","pos":[0,1,-2],"kind":"GEARBOX","faces":["+X","-Z"]}`,
		protocol.TypeAck:   `{"type":"ACK","protocol_version":"0.1","ack_for":"c1","accepted":false,"code":"E_BLOCKED"}`,
	}
	for typ, raw := range valid {
		require.NoError(t, protocol.Validate(typ, []byte(raw)), typ)
	}
	edge := `{"type":"CMD","protocol_version":"0.1","id":"c2","op":"BREAK","pos":[-33554432,2047,33554431]}`
	require.NoError(t, protocol.Validate(protocol.TypeCmd, []byte(edge)))
}

func TestSchemas_RejectBadCommands(t *testing.T) {
	bad := []string{
		`{"type":"CMD","protocol_version":"0.1","id":"c1","op":"PLACE","pos":[0,0,0]}`,
		`{"type":"CMD","protocol_version":"0.1","id":"c1","op":"BREAK","pos":[0,0]}`,
		`{"type":"CMD","protocol_version":"0.1","id":"c1","op":"BREAK","pos":[0,0,0,0]}`,
		`{"type":"CMD","protocol_version":"0.1","id":"c1","op":"BREAK","pos":[0,2048,0]}`,
		`{"type":"CMD","protocol_version":"0.1","id":"c1","op":"BREAK","pos":[33554432,0,0]}`,
		`{"type":"CMD","protocol_version":"0.1","id":"c1","op":"BREAK","pos":[0,0,-33554433]}`,
		`{"type":"CMD","protocol_version":"0.1","id":"c1","op":"PLACE","pos":[0,0,0],"kind":"AXLE","axis":"W"}`,
		`{"type":"CMD","protocol_version":"0.1","id":"c1","op":"SET_POWER","pos":[0,0,0],"speed":-1}`,
		`{"type":"CMD","protocol_version":"0.1","id":"c1","op":"EXPLODE","pos":[0,0,0]}`,
		`not json`,
	}
	for _, raw := range bad {
		err := protocol.Validate(protocol.TypeCmd, []byte(raw))
		require.True(t, errors.Is(err, protocol.ErrSchema), raw)
	}
	require.Error(t, protocol.Validate("OBS", []byte(`{}`)))
}

func TestAckMessagesMatchSchema(t *testing.T) {
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          "c9",
		Accepted:        true,
		ServerTick:      12,
	})
	require.NoError(t, err)
	require.NoError(t, protocol.Validate(protocol.TypeAck, b))

	base, err := protocol.DecodeBase(b)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeAck, base.Type)
}
