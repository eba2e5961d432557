package main

import "github.com/mtrevisan/boxon/internal/tmpl"

// telemetryFrame is a worked example registered message: a fixed header,
// a device id, a terminated label, a 32-bit reading, and a trailing
// checksum covering everything from the header through the reading. Real integrators define
// their own record types the same way — a plain Go struct with `boxon`
// tags and a BoxonHeader method — and register them with an Engine at
// startup instead of compiling a schema file, since the engine's schema
// IS the struct.
type telemetryFrame struct {
	DeviceID byte   `boxon:"kind=integer,size=8"`
	Label    string `boxon:"kind=stringTerminated,terminator=0,consumeTerminator=true"`
	Reading  int32  `boxon:"kind=integer,size=32"`
	Checksum byte   `boxon:"kind=checksum,size=8,algorithm=crc8"`
}

func (telemetryFrame) BoxonHeader() tmpl.Header {
	return tmpl.Header{Start: []byte{0xCA, 0xFE}}
}

// heartbeatFrame is a second, shorter example message sharing the same
// Engine, to exercise header-prefix disambiguation and the driver's
// multi-message resync.
type heartbeatFrame struct {
	Sequence uint16 `boxon:"kind=integer,size=16"`
}

func (heartbeatFrame) BoxonHeader() tmpl.Header {
	return tmpl.Header{Start: []byte{0xCA, 0x00}}
}
