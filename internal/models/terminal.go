package models

// ConnectionState is the terminal state machine's current position.
type ConnectionState string

const (
	StateUninitialized ConnectionState = "uninitialized"
	StateInitializing  ConnectionState = "initializing"
	StateReady         ConnectionState = "ready"
	StateDiscovering   ConnectionState = "discovering"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateCollecting    ConnectionState = "collecting"
	StateProcessing    ConnectionState = "processing"
	StateDisconnected  ConnectionState = "disconnected"
)

// TerminalDevice describes a card-present reader candidate. Transient; never
// persisted. Device handles are owned exclusively by the terminal service.
type TerminalDevice struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	SerialNumber string `json:"serial_number"`
	DeviceType   string `json:"device_type"`
}
