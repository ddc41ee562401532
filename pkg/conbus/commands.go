// SPDX-License-Identifier: Apache-2.0

package conbus

// Request builder functions create Telegram values ready for transmission.
// These are convenience wrappers around BuildSystem/BuildReply that ensure
// correct function and datapoint code usage.

// NewDiscoveryRequest creates a broadcast discovery request. Every module
// on the bus answers with a discovery Reply carrying its serial number.
func NewDiscoveryRequest() *Telegram {
	t, _ := BuildSystem(SerialBroadcast, FuncDiscovery, DefaultDatapoint, "")
	return t
}

// NewDiscoveryResponse creates the Reply a module sends to a discovery
// request.
func NewDiscoveryResponse(serial string) (*Telegram, error) {
	return BuildReply(serial, FuncDiscovery, DefaultDatapoint, "")
}

// NewReadDatapointRequest creates a read request for one datapoint of the
// addressed module.
func NewReadDatapointRequest(serial, datapoint string) (*Telegram, error) {
	return BuildSystem(serial, FuncReadDatapoint, datapoint, "")
}

// NewWriteConfigRequest creates a configuration write carrying a
// nibble-encoded payload.
func NewWriteConfigRequest(serial, datapoint string, value []byte) (*Telegram, error) {
	return BuildSystem(serial, FuncWriteConfig, datapoint, NibbleEncode(value))
}

// NewBlinkCommand creates a blink (on=true) or unblink (on=false) command.
// Blinking a module's LED identifies it physically during commissioning.
func NewBlinkCommand(serial string, on bool) (*Telegram, error) {
	fn := FuncBlink
	if !on {
		fn = FuncUnblink
	}
	return BuildSystem(serial, fn, DefaultDatapoint, "")
}

// NewAck creates a positive acknowledgement System telegram. The transfer
// state machines send one for every received table chunk.
func NewAck(serial string) (*Telegram, error) {
	return BuildSystem(serial, FuncAck, DefaultDatapoint, "")
}

// NewAckReply creates the Reply form of a positive acknowledgement.
func NewAckReply(serial string) (*Telegram, error) {
	return BuildReply(serial, FuncAck, DefaultDatapoint, "")
}

// NewNakReply creates the Reply form of a negative acknowledgement.
func NewNakReply(serial string) (*Telegram, error) {
	return BuildReply(serial, FuncNak, DefaultDatapoint, "")
}

// NewTableStatusRequest creates the reset/status request that begins (and
// finally confirms) an action-table transfer. An idle module answers ack, a
// module still mid-stream answers nak.
func NewTableStatusRequest(serial string) (*Telegram, error) {
	return BuildSystem(serial, FuncTableStatus, DefaultDatapoint, "")
}

// NewTableDownloadRequest asks the module to start sending its action table
// in chunks.
func NewTableDownloadRequest(serial string) (*Telegram, error) {
	return BuildSystem(serial, FuncTableDownload, DefaultDatapoint, "")
}

// NewTableUploadRequest announces an action-table upload to the module.
func NewTableUploadRequest(serial string) (*Telegram, error) {
	return BuildSystem(serial, FuncTableUpload, DefaultDatapoint, "")
}

// NewTableData creates a table-data System telegram carrying one
// nibble-encoded chunk. Table-data frames are CRC-32 checked.
func NewTableData(serial string, chunk []byte) (*Telegram, error) {
	return BuildSystem(serial, FuncTableData, DefaultDatapoint, NibbleEncode(chunk))
}

// NewTableDataReply creates the Reply form of a table-data chunk, as sent
// by a module serving a download.
func NewTableDataReply(serial string, chunk []byte) (*Telegram, error) {
	return BuildReply(serial, FuncTableData, DefaultDatapoint, NibbleEncode(chunk))
}

// NewTableEnd creates the end-of-table System telegram closing an upload.
func NewTableEnd(serial string) (*Telegram, error) {
	return BuildSystem(serial, FuncTableEnd, DefaultDatapoint, "")
}

// NewTableEndReply creates the Reply form of end-of-table, as sent by a
// module closing a download.
func NewTableEndReply(serial string) (*Telegram, error) {
	return BuildReply(serial, FuncTableEnd, DefaultDatapoint, "")
}
