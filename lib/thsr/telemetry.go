package thsr

import (
	"thsr-receipts/lib/restyutil"
	"thsr-receipts/lib/telemetry"
)

var tracer = telemetry.Tracer("thsr.lib.thsr")
var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput dumps the http messages of clients created
// afterwards into `out` when debug logging is on.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}
