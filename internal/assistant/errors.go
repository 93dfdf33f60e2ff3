package assistant

import "errors"

var ErrEmptyCompletion = errors.New("generation service returned no content")
