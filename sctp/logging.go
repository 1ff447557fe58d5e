package sctp

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/xid"
)

// newAssociationLogger scopes a logger per association with a short
// correlation id, the way pion-webrtc scopes loggers per PeerConnection
// (logging.NewScopedLogger) but tagged with an xid instead of a
// sequential counter so log lines from concurrently-driven associations
// in one process don't interleave ambiguously.
func newAssociationLogger(factory logging.LoggerFactory) (logging.LeveledLogger, string) {
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	id := xid.New().String()
	return factory.NewLogger(fmt.Sprintf("sctp(%s)", id)), id
}
