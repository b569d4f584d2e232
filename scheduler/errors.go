package scheduler

import (
	"errors"

	"github.com/coreybb/xianyu-autodeliver/datastore"
	"github.com/coreybb/xianyu-autodeliver/marketplace"
)

// ErrCycleInProgress is returned when a cycle is requested while another one
// is still running.
var ErrCycleInProgress = errors.New("poll cycle already in progress")

// IsFatal reports whether err must stop the process: the dedup store can no
// longer be trusted, or the marketplace session needs a manual login.
func IsFatal(err error) bool {
	return errors.Is(err, datastore.ErrStorageWrite) || errors.Is(err, marketplace.ErrSessionLost)
}
