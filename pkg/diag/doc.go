// Package diag provides the diagnostic link of the supervisor.
package diag

// The diagnostic link is a one way byte stream from the firmware to a host,
// typically a serial port. It carries kernel events and the halt report, so
// a halt is diagnosed even when no network is available.
//
// Every frame is
//
//	0x7e | seq | code | len (2 bytes, LE) | data | crc16 (2 bytes, BE)
//
// The checksum is CRC-16/CCITT-FALSE over seq, code, len and data. The
// sequence number lets the receiver count lost frames. A receiver
// resynchronizes on the next 0x7e after a bad frame.
//
// Producer: taskvisor firmware
// Consumer: taskmon
