// Package commands implements the securestream command-line tool.
//
//	securestream selftest
//	securestream calibrate --target-ms 500
//	securestream keygen -o me.key
//	securestream agree -k me.key --peer @them.key.pub --epoch 2026-01-01 -o them.contact
//	securestream seal -i notes.txt -o notes.sealed
//	securestream unseal -i notes.sealed
//	securestream listen -c them.contact 0.0.0.0:7000 > received
//	securestream send -c them.contact host:7000 < file
//
// Passwords are read from the terminal, or from SECURESTREAM_PASSWORD when
// set. Outbound connections honour the proxy section of the config file and
// SECURESTREAM_PROXY.
package commands
