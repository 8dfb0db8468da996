// Package mongodb dials MongoDB clients for the registry.
//
// Dialer.Dial satisfies resource.DialFunc: it validates the connection
// string, connects, and verifies the deployment with a server-selection ping,
// mapping driver failures onto the resource error taxonomy.
package mongodb
