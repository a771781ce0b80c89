/*
File Name:  Exit.go

Exit codes signal why a command using this library exited. Clients are
encouraged to log additional detail; 3rd party clients may define
additional codes starting above the highest one declared here.
*/

package core

const (
	ExitSuccess           = 0 // Not itself reported as a failure.
	ExitErrorConfigAccess = 1 // Error accessing the config file.
	ExitErrorConfigRead   = 2 // Error reading the config file.
	ExitErrorConfigParse  = 3 // Error parsing the config file.
	ExitErrorLogInit      = 4 // Error initializing the log file.
	ExitErrorSinkFailure  = 5 // The sink (store) could not be opened.
	ExitErrorNoSeeds      = 6 // No seed endpoints were available to start the crawl.
	ExitGraceful          = 9 // Graceful shutdown (signal, or context cancellation).
)
