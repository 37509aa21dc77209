package bloom

import "errors"

// ErrCorruptFilter is returned by Decode when the encoded header is
// truncated or otherwise malformed.
var ErrCorruptFilter = errors.New("bloom: corrupt filter encoding")

// ErrFilterSizeMismatch is returned by Decode when the recorded entry
// count and bits-per-entry no longer agree with the stored bitset's
// length, so the caller refuses to use the filter rather than silently
// miscomputing against it.
var ErrFilterSizeMismatch = errors.New("bloom: filter size does not match recorded entry count / bits-per-entry")
