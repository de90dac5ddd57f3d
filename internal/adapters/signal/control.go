package signal

import "github.com/dkeye/soupvoice/internal/protocol"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, protocol.TypePong, struct{}{})
}
