package sys

import "errors"

// ErrPreallocNotSupported means the platform or filesystem cannot reserve
// blocks up front. The mapping still works without it.
var ErrPreallocNotSupported = errors.New("preallocation not supported")
