package chargebridge

import (
	"sync"

	"github.com/oddbit-project/chargebridge/log"
	"github.com/oddbit-project/chargebridge/types/callstack"
)

var appDestructors *callstack.CallStack = nil
var shutdownMx *sync.Mutex = &sync.Mutex{}

// Retrieve callback manager
func GetDestructorManager() *callstack.CallStack {
	return appDestructors
}

// RegisterDestructor Register a function to perform shutdown procedures
func RegisterDestructor(fn callstack.CallableFn) {
	appDestructors.Add(fn)
}

// Shutdown Shuts down the whole application
// Destructors run even when terminating on error, so active sessions still
// receive their close frames before the process exits
func Shutdown(arg error) {
	shutdownMx.Lock()
	defer shutdownMx.Unlock()

	if appDestructors == nil {
		return
	}
	logger := log.New("runtime")
	if arg != nil {
		logger.Error(arg, "Fatal error")
	}
	if err := appDestructors.Run(false); err != nil {
		logger.Error(err, "Fatal error while shutting down")
	}
	appDestructors = nil
}

func init() {
	appDestructors = callstack.NewCallStack()
}
