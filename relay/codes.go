package relay

import (
	"errors"

	"github.com/oddbit-project/chargebridge/audit"
	"github.com/oddbit-project/chargebridge/envelope"
	"github.com/oddbit-project/chargebridge/utils"
)

// Close codes sent to the device when a session is terminated. Only the code
// crosses the wire; detection detail stays in logs and the audit trail.
const (
	CloseSuppression   = 4001
	CloseFlood         = 4002
	CloseProtocolError = 4003
	CloseReplay        = 4004
	CloseTamper        = 4005
	CloseReorder       = 4006
)

const (
	ErrFloodDetected       = utils.Error("message flood detected")
	ErrReorderDetected     = utils.Error("command reordering detected")
	ErrSuppressionDetected = utils.Error("liveness suppression detected")
	ErrProtocolError       = utils.Error("protocol error")
)

// violation binds a detection error to its close code and audit kind
type violation struct {
	code int
	kind string
	err  error
}

// classify maps detection errors onto violations. Malformed envelopes and
// unparseable frames fall through to the protocol error class.
func classify(err error) violation {
	switch {
	case errors.Is(err, envelope.ErrNonceReplayed):
		return violation{CloseReplay, audit.KindReplayDetected, err}
	case errors.Is(err, envelope.ErrTimestampSkew),
		errors.Is(err, envelope.ErrSignatureMismatch):
		return violation{CloseTamper, audit.KindTamperDetected, err}
	case errors.Is(err, ErrFloodDetected):
		return violation{CloseFlood, audit.KindFloodDetected, err}
	case errors.Is(err, ErrReorderDetected):
		return violation{CloseReorder, audit.KindReorderDetected, err}
	case errors.Is(err, ErrSuppressionDetected):
		return violation{CloseSuppression, audit.KindSuppressionDetected, err}
	default:
		return violation{CloseProtocolError, audit.KindProtocolError, err}
	}
}
