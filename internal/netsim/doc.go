// Package netsim injects network-level faults into the emulator's inbound
// byte stream.
//
// A single Pipeline sits between the TCP connection manager and the
// decoder. Test harnesses activate conditions (latency, packet loss,
// corruption, fragmentation, drop patterns, forced disconnects) through
// handles and the pipeline composes whatever is active in a fixed order,
// so combined faults behave the same regardless of activation order.
// Randomised stages accept a seed for reproducible trials.
package netsim
