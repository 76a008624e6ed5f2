/*Package sparcerr contains simple functions for reporting sparc errors.*/
package sparcerr

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
)

// External reports an error to stderr and kills the process. It should be
// used when an error is something a user could reasonably be expected to
// fix through changes to configuration, input data, or environment -- a
// bad input file, a missing required parameter, an unreadable path.
func External(format string, a ...interface{}) {
	log.Printf("sparc exited early with the following error:\n"+format, a...)
	os.Exit(1)
}

// Internal reports an error to stderr along with a stack trace and kills
// the process. It should be used when the error is the result of a bug
// rather than something a user could fix by changing their inputs.
func Internal(format string, a ...interface{}) {
	log.Println("sparc exited early with the following error:")
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n\n")
	debug.PrintStack()
	os.Exit(1)
}
