// Package connectivity decides whether the client talks to the live service
// or to the local mock responder.
//
// # States
//
//	UNKNOWN --startup probe ok--> CONNECTED
//	UNKNOWN --startup probe failed--> MOCK
//	CONNECTED --live call or status probe failed--> MOCK
//
// MOCK is sticky: a later successful probe sets IsConnected again but leaves
// MockModeEnabled on, so the UI does not flap between live and simulated
// data mid-session. Only ForceInitialize resets the state.
//
// Probe timeouts abort the local wait only; they cannot cancel a request the
// server has already received.
package connectivity
