package delivery

import "errors"

// ErrSendFailed means the marketplace did not confirm the message. The order
// stays pending and the minted code is abandoned.
var ErrSendFailed = errors.New("delivery message was not sent")
