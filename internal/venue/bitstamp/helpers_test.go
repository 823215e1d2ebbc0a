package bitstamp

import (
	"io"

	"github.com/BullionBear/aggbook/internal/xlog"
)

func testLogger() xlog.Logger {
	return xlog.New(xlog.WithOutput(io.Discard))
}
