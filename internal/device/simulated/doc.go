// Package simulated is an in-memory device driver.
//
// It implements device.Controller over devices declared in the
// kasa.simulated section of the configuration, so the bridge can run
// end-to-end without real hardware:
//
//	kasa:
//	  driver: simulated
//	  simulated:
//	    latency: 50ms
//	    devices:
//	      - address: 192.168.1.20
//	        alias: Desk Lamp
//	        type: bulb
//	      - address: 192.168.1.21
//	        alias: Power Strip
//	        type: strip
//	        children: [Kettle, Toaster, Radio]
//
// Handles behave like real ones: accessors return the state cached by the
// last Update, not the live device state. Tests can inject failures with
// SetUnreachable and FailNext, and observe device calls with SetHook.
package simulated
