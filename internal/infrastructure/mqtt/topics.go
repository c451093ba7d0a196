package mqtt

import "fmt"

// Topic prefixes for the emulator's MQTT surface.
//
// All topics use the flat scheme: escpos-sim/{category}/{detail}
const (
	// TopicPrefix is the base for all emulator topics.
	TopicPrefix = "escpos-sim"

	// TopicPrefixPrinter is the base for printer state topics.
	TopicPrefixPrinter = "escpos-sim/printer"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "escpos-sim/system"
)

// Topics provides builders for emulator MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.PrinterStatus()
//	// Returns: "escpos-sim/printer/status"
type Topics struct{}

// PrinterStatus returns the retained printer status topic.
//
// Example: escpos-sim/printer/status
func (Topics) PrinterStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixPrinter)
}

// PrinterError returns the topic for error transition events.
//
// Example: escpos-sim/printer/error
func (Topics) PrinterError() string {
	return fmt.Sprintf("%s/error", TopicPrefixPrinter)
}

// PrinterRecovery returns the topic for recovery events.
//
// Example: escpos-sim/printer/recovery
func (Topics) PrinterRecovery() string {
	return fmt.Sprintf("%s/recovery", TopicPrefixPrinter)
}

// PrinterCommand returns the topic for decoded command events.
//
// Example: escpos-sim/printer/command
func (Topics) PrinterCommand() string {
	return fmt.Sprintf("%s/command", TopicPrefixPrinter)
}

// SystemStatus returns the system status topic used for online/offline
// announcements and the Last Will message.
//
// Example: escpos-sim/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllPrinterTopics returns a pattern matching every printer topic.
//
// Pattern: escpos-sim/printer/+
func (Topics) AllPrinterTopics() string {
	return fmt.Sprintf("%s/+", TopicPrefixPrinter)
}

// AllTopics returns a pattern matching all emulator topics.
// Use with caution, this receives ALL traffic.
//
// Pattern: escpos-sim/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
