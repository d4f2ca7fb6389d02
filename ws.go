package keel

import (
	"crypto/sha1"
	"encoding/base64"
	"net"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/indigo-web/keel/channel"
	"github.com/indigo-web/keel/http"
	"github.com/indigo-web/keel/http/status"
)

const websocketMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// UpgradeWebSocket accepts a WebSocket handshake on the current exchange.
// The 101 response is prepared but not yet sent: the serve callback receives
// the raw connection only after the channel flushed the handshake, so data
// the client sends right after the 101 is never lost.
func UpgradeWebSocket(ch *channel.Channel, serve func(conn net.Conn)) error {
	request := ch.Request()

	if !headerHasToken(request, "Connection", "upgrade") ||
		!strings.EqualFold(request.Headers.Value("Upgrade"), "websocket") {
		return status.NewError(status.UpgradeRequired, "not a websocket handshake")
	}

	key := request.Headers.Value("Sec-WebSocket-Key")
	if len(key) == 0 {
		return status.NewError(status.BadRequest, "missing Sec-WebSocket-Key")
	}
	if version := request.Headers.Value("Sec-WebSocket-Version"); version != "13" {
		return status.NewError(status.BadRequest, "unsupported websocket version")
	}

	ch.Response().
		Code(status.SwitchingProtocols).
		Header("Upgrade", "websocket").
		Header("Connection", "Upgrade").
		Header("Sec-WebSocket-Accept", acceptKey(key))

	request.SetAttribute(http.AttrUpgradeConnection, serve)
	request.SetHandled(true)

	return nil
}

// EchoWebSocket is a ready-made message loop: every client message is passed
// through respond and the result written back with the same opcode.
func EchoWebSocket(respond func(msg []byte) []byte) func(conn net.Conn) {
	return func(conn net.Conn) {
		defer conn.Close()

		for {
			msg, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}

			if op == ws.OpClose {
				return
			}

			if err = wsutil.WriteServerMessage(conn, op, respond(msg)); err != nil {
				return
			}
		}
	}
}

func acceptKey(key string) string {
	digest := sha1.Sum([]byte(key + websocketMagic))
	return base64.StdEncoding.EncodeToString(digest[:])
}

func headerHasToken(request *http.Request, key, token string) bool {
	for _, value := range request.Headers.Values(key) {
		for _, candidate := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(candidate), token) {
				return true
			}
		}
	}

	return false
}
